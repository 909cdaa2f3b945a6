package notify

import "testing"

// newTestManager собирает Manager так же, как NewManager, но с
// впрыснутыми конфигурацией и колесом таймеров — тестам нужен
// детерминизм, а не глобальный config.Env() и реальные time.AfterFunc.
func newTestManager(kv KV, session AuthSession, presence PresenceOracle, clock Clock, sink UpdateSink, tunables Tunables, wheel TimerWheel) *Manager {
	m := &Manager{
		mailbox:   make(chan func()),
		done:      make(chan struct{}),
		store:     NewGroupStore(),
		session:   session,
		presence:  presence,
		clock:     clock,
		sink:      sink,
		bufferCap: defaultUpdateBufferCap,
	}
	m.allocator = NewIDAllocator(kv, session)
	m.configMirror = &ConfigMirror{current: tunables}
	m.scheduler = NewPendingScheduler(wheel)
	go m.run()
	return m
}

func defaultTestTunables() Tunables {
	return Tunables{
		GroupCountMax:        5,
		GroupSizeMax:         10,
		OnlineCloudTimeoutMS: 300000,
		CloudDelayMS:         2000,
		DefaultDelayMS:       1500,
		KeepSize:             deriveKeepSize(10),
	}
}

// barrier блокируется, пока мейлбокс не обработает все ранее поставленные
// в очередь closures — используется после enqueue-стиля вызовов вроде
// onTimerFire, чтобы синхронно дождаться результата перед проверкой.
func barrier(m *Manager) { m.do(func() {}) }

func TestManagerAddNotificationSchedulesAndFlushes(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	wheel := &fakeTimerWheel{}
	clock := &fakeClock{now: 100, server: 1000}
	m := newTestManager(kv, &fakeSession{}, &fakePresence{}, clock, sink, defaultTestTunables(), wheel)
	defer m.Stop()

	dialog := DialogID{Kind: DialogUser, ID: 42}
	groupID := m.AllocateGroupID()
	notifID := m.AllocateNotificationID()

	m.AddNotification(groupID, dialog, 1000, dialog, false, notifID, &fakeNotificationType{label: "hi"})

	if _, ok := wheel.lastSetAt(groupID); !ok {
		t.Fatal("AddNotification did not schedule a flush on the timer wheel")
	}

	m.onTimerFire(groupID)
	barrier(m)

	updates := sink.snapshotGroups()
	if len(updates) != 1 || len(updates[0].Added) != 1 {
		t.Fatalf("got updates %+v, want a single group update with one added notification", updates)
	}
}

func TestManagerAddNotificationBotSessionNoop(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	wheel := &fakeTimerWheel{}
	clock := &fakeClock{now: 100, server: 1000}
	m := newTestManager(kv, &fakeSession{bot: true}, &fakePresence{}, clock, sink, defaultTestTunables(), wheel)
	defer m.Stop()

	dialog := DialogID{Kind: DialogUser, ID: 1}
	m.AddNotification(1, dialog, 1000, dialog, false, 1, &fakeNotificationType{label: "hi"})
	barrier(m)

	if _, ok := wheel.lastSetAt(1); ok {
		t.Error("bot session must not schedule a flush")
	}
}

// TestManagerEditNotificationBotSessionNoop проверяет §7: на бот-сессии
// EditNotification обязана выйти до assertContract(notifID.Valid()), иначе
// сентинел-id 0, который отдаёт AllocateNotificationID на боте, обрушивает
// её паникой вместо no-op.
func TestManagerEditNotificationBotSessionNoop(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	wheel := &fakeTimerWheel{}
	clock := &fakeClock{now: 100, server: 1000}
	m := newTestManager(kv, &fakeSession{bot: true}, &fakePresence{}, clock, sink, defaultTestTunables(), wheel)
	defer m.Stop()

	m.EditNotification(0, 0, &fakeNotificationType{label: "v2"})
	barrier(m)

	if len(sink.singles) != 0 {
		t.Errorf("bot session must not emit single updates, got %+v", sink.singles)
	}
}

func TestManagerEditNotificationVisibleSuffix(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	wheel := &fakeTimerWheel{}
	clock := &fakeClock{now: 100, server: 1000}
	m := newTestManager(kv, &fakeSession{}, &fakePresence{}, clock, sink, defaultTestTunables(), wheel)
	defer m.Stop()

	dialog := DialogID{Kind: DialogUser, ID: 7}
	groupID := m.AllocateGroupID()
	notifID := m.AllocateNotificationID()
	m.AddNotification(groupID, dialog, 1000, dialog, false, notifID, &fakeNotificationType{label: "v1"})
	m.onTimerFire(groupID)
	barrier(m)

	m.EditNotification(groupID, notifID, &fakeNotificationType{label: "v2"})
	barrier(m)

	singles := sink.singles
	if len(singles) != 1 {
		t.Fatalf("got %d single updates, want 1", len(singles))
	}
	if singles[0].Notification.Rendered.Body != "v2" {
		t.Errorf("edited body = %q, want %q", singles[0].Notification.Rendered.Body, "v2")
	}
}

func TestManagerEditNotificationUnknownGroupIsNoop(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	wheel := &fakeTimerWheel{}
	clock := &fakeClock{now: 100, server: 1000}
	m := newTestManager(kv, &fakeSession{}, &fakePresence{}, clock, sink, defaultTestTunables(), wheel)
	defer m.Stop()

	m.EditNotification(999, 1, &fakeNotificationType{label: "x"})
	barrier(m)

	if len(sink.singles) != 0 || len(sink.snapshotGroups()) != 0 {
		t.Error("editing an unknown group must not emit anything")
	}
}

func TestManagerRemoveNotificationVisibleEmitsUpdate(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	wheel := &fakeTimerWheel{}
	clock := &fakeClock{now: 100, server: 1000}
	m := newTestManager(kv, &fakeSession{}, &fakePresence{}, clock, sink, defaultTestTunables(), wheel)
	defer m.Stop()

	dialog := DialogID{Kind: DialogUser, ID: 3}
	groupID := m.AllocateGroupID()
	notifID := m.AllocateNotificationID()
	m.AddNotification(groupID, dialog, 1000, dialog, false, notifID, &fakeNotificationType{label: "v1"})
	m.onTimerFire(groupID)
	barrier(m)

	if err := m.RemoveNotification(groupID, notifID); err != nil {
		t.Fatalf("RemoveNotification returned error: %v", err)
	}

	updates := sink.snapshotGroups()
	if len(updates) != 2 {
		t.Fatalf("got %d group updates, want 2 (flush + removal)", len(updates))
	}
	removal := updates[1]
	if len(removal.RemovedIDs) != 1 || removal.RemovedIDs[0] != notifID {
		t.Errorf("removal update = %+v, want RemovedIDs=[%s]", removal, notifID)
	}
	if removal.TotalCount != 0 {
		t.Errorf("TotalCount after removal = %d, want 0", removal.TotalCount)
	}
}

func TestManagerRemoveNotificationInvalidID(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	wheel := &fakeTimerWheel{}
	m := newTestManager(kv, &fakeSession{}, &fakePresence{}, &fakeClock{}, sink, defaultTestTunables(), wheel)
	defer m.Stop()

	if err := m.RemoveNotification(1, 0); err == nil {
		t.Error("RemoveNotification(id=0) must reject the sentinel id")
	}
}

func TestManagerRemoveNotificationGroupCapsAtMaxID(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	wheel := &fakeTimerWheel{}
	clock := &fakeClock{now: 100, server: 1000}
	m := newTestManager(kv, &fakeSession{}, &fakePresence{}, clock, sink, defaultTestTunables(), wheel)
	defer m.Stop()

	dialog := DialogID{Kind: DialogUser, ID: 9}
	groupID := m.AllocateGroupID()
	id1 := m.AllocateNotificationID()
	id2 := m.AllocateNotificationID()
	id3 := m.AllocateNotificationID()

	m.AddNotification(groupID, dialog, 1000, dialog, false, id1, &fakeNotificationType{label: "a"})
	m.AddNotification(groupID, dialog, 1001, dialog, false, id2, &fakeNotificationType{label: "b"})
	m.AddNotification(groupID, dialog, 1002, dialog, false, id3, &fakeNotificationType{label: "c"})
	m.onTimerFire(groupID)
	barrier(m)

	if err := m.RemoveNotificationGroup(groupID, id2); err != nil {
		t.Fatalf("RemoveNotificationGroup returned error: %v", err)
	}

	updates := sink.snapshotGroups()
	last := updates[len(updates)-1]
	if len(last.RemovedIDs) != 2 {
		t.Fatalf("removed ids = %+v, want 2 (id1 and id2, id3 kept)", last.RemovedIDs)
	}
	for _, id := range last.RemovedIDs {
		if id == id3 {
			t.Errorf("id3 (%s) must survive a remove-up-to-id2 call", id3)
		}
	}
}

func TestManagerSuspendResumeBuffersUpdates(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	wheel := &fakeTimerWheel{}
	clock := &fakeClock{now: 100, server: 1000}
	m := newTestManager(kv, &fakeSession{}, &fakePresence{}, clock, sink, defaultTestTunables(), wheel)
	defer m.Stop()

	m.Suspend()

	dialog := DialogID{Kind: DialogUser, ID: 5}
	groupID := m.AllocateGroupID()
	notifID := m.AllocateNotificationID()
	m.AddNotification(groupID, dialog, 1000, dialog, false, notifID, &fakeNotificationType{label: "buffered"})
	m.onTimerFire(groupID)
	barrier(m)

	if len(sink.snapshotGroups()) != 0 {
		t.Fatal("no updates must reach the sink while suspended")
	}

	m.Resume()

	updates := sink.snapshotGroups()
	if len(updates) != 1 || len(updates[0].Added) != 1 {
		t.Fatalf("got %+v after Resume, want the buffered update replayed", updates)
	}
}

func TestManagerSuspendResumeDropsOldestPastCapacity(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	m := newTestManager(kv, &fakeSession{}, &fakePresence{}, &fakeClock{}, sink, defaultTestTunables(), &fakeTimerWheel{})
	m.bufferCap = 2
	defer m.Stop()

	m.Suspend()
	m.do(func() {
		m.SendGroupUpdate(GroupUpdate{GroupID: 1})
		m.SendGroupUpdate(GroupUpdate{GroupID: 2})
		m.SendGroupUpdate(GroupUpdate{GroupID: 3})
	})
	m.Resume()

	updates := sink.snapshotGroups()
	if len(updates) != 2 {
		t.Fatalf("got %d replayed updates, want 2 (oldest dropped by cap)", len(updates))
	}
	if updates[0].GroupID != 2 || updates[1].GroupID != 3 {
		t.Errorf("replayed = %+v, want groups [2,3] (group 1 dropped)", updates)
	}
}

func TestManagerAllocateIDsBotSessionReturnsSentinel(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	m := newTestManager(kv, &fakeSession{bot: true}, &fakePresence{}, &fakeClock{}, sink, defaultTestTunables(), &fakeTimerWheel{})
	defer m.Stop()

	if id := m.AllocateGroupID(); id != 0 {
		t.Errorf("AllocateGroupID() for bot session = %d, want 0", id)
	}
	if id := m.AllocateNotificationID(); id != 0 {
		t.Errorf("AllocateNotificationID() for bot session = %d, want 0", id)
	}
}

func TestManagerVisibleGroupsSnapshot(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	sink := newFakeSink()
	wheel := &fakeTimerWheel{}
	clock := &fakeClock{now: 100, server: 1000}
	m := newTestManager(kv, &fakeSession{}, &fakePresence{}, clock, sink, defaultTestTunables(), wheel)
	defer m.Stop()

	dialog := DialogID{Kind: DialogUser, ID: 11}
	groupID := m.AllocateGroupID()
	notifID := m.AllocateNotificationID()
	m.AddNotification(groupID, dialog, 1000, dialog, false, notifID, &fakeNotificationType{label: "x"})
	m.onTimerFire(groupID)
	barrier(m)

	snapshot := m.VisibleGroups()
	if len(snapshot) != 1 {
		t.Fatalf("got %d snapshot entries, want 1", len(snapshot))
	}
	if snapshot[0].GroupID != groupID || snapshot[0].Shown != 1 || snapshot[0].TotalCount != 1 {
		t.Errorf("snapshot = %+v, want GroupID=%s Shown=1 TotalCount=1", snapshot[0], groupID)
	}
}
