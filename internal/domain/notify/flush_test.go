package notify

import "testing"

func addPending(group *Group, id NotificationID, date int32, settings DialogID, silent bool, typ NotificationType) {
	group.PendingNotifications = append(group.PendingNotifications, PendingNotification{
		ID:               id,
		Type:             typ,
		Date:             date,
		SettingsDialogID: settings,
		IsSilent:         silent,
	})
}

// TestFlushSingleGroup — сценарий 1: единственная группа, одно уведомление,
// флаш эмитит ровно один GroupUpdate с этим уведомлением в Added и без
// remove/add-seed обвязки, так как группа не теряла и не приобретала видимость.
func TestFlushSingleGroup(t *testing.T) {
	t.Parallel()

	store := NewGroupStore()
	sink := newFakeSink()
	dialog := DialogID{Kind: DialogUser, ID: 1}
	tunables := Tunables{GroupCountMax: 5, GroupSizeMax: 10, KeepSize: 20}

	group, key := store.GetOrCreate(1, dialog)
	store.Remove(key)
	addPending(group, 100, 5, dialog, false, &fakeNotificationType{label: "hello"})
	store.Insert(key, group)

	Flush(store, tunables, sink, 1)

	updates := sink.snapshotGroups()
	if len(updates) != 1 {
		t.Fatalf("got %d group updates, want 1", len(updates))
	}
	if len(updates[0].Added) != 1 || updates[0].Added[0].ID != 100 {
		t.Errorf("Added = %+v, want single id 100", updates[0].Added)
	}
	if updates[0].TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", updates[0].TotalCount)
	}

	got, gotKey, ok := store.Lookup(1)
	if !ok {
		t.Fatal("group missing from store after flush")
	}
	if gotKey.LastNotificationDate != 5 {
		t.Errorf("key.LastNotificationDate = %d, want 5", gotKey.LastNotificationDate)
	}
	if len(got.PendingNotifications) != 0 {
		t.Errorf("pending not cleared: %+v", got.PendingNotifications)
	}
}

// TestFlushWindowEviction — сценарий 3: max_group_count=2, три группы
// добавлены в порядке A(date=1), B(date=2). Флаш новой группы C, чьи
// pending-уведомления датированы 3, делает C самой свежей и вытесняет A
// (наименее свежую из оставшихся A,B) за пределы окна из 2 групп.
func TestFlushWindowEviction(t *testing.T) {
	t.Parallel()

	store := NewGroupStore()
	sink := newFakeSink()
	tunables := Tunables{GroupCountMax: 2, GroupSizeMax: 10, KeepSize: 20}

	dialogA := DialogID{Kind: DialogUser, ID: 1}
	dialogB := DialogID{Kind: DialogUser, ID: 2}
	dialogC := DialogID{Kind: DialogUser, ID: 3}

	// A уже во флашенном состоянии (LastNotificationDate=1), с одним видимым
	// уведомлением, чтобы sendRemoveGroupUpdate было что вытеснять.
	groupA, keyA := store.GetOrCreate(1, dialogA)
	groupA.Notifications = append(groupA.Notifications, Notification{ID: 1, Type: &fakeNotificationType{label: "a"}})
	store.Remove(keyA)
	keyA.LastNotificationDate = 1
	store.Insert(keyA, groupA)

	groupB, keyB := store.GetOrCreate(2, dialogB)
	groupB.Notifications = append(groupB.Notifications, Notification{ID: 2, Type: &fakeNotificationType{label: "b"}})
	store.Remove(keyB)
	keyB.LastNotificationDate = 2
	store.Insert(keyB, groupB)

	groupC, keyC := store.GetOrCreate(3, dialogC)
	addPending(groupC, 3, 3, dialogC, false, &fakeNotificationType{label: "c"})
	store.Remove(keyC)
	store.Insert(keyC, groupC)

	Flush(store, tunables, sink, 3)

	updates := sink.snapshotGroups()
	if len(updates) < 2 {
		t.Fatalf("got %d group updates, want at least 2 (remove A + add/flush C)", len(updates))
	}

	// The first update must be the eviction of A: an all-removal update.
	if updates[0].GroupID != 1 || len(updates[0].RemovedIDs) != 1 || updates[0].RemovedIDs[0] != 1 {
		t.Errorf("first update = %+v, want removal of group 1's notification 1", updates[0])
	}

	// C must end up visible and holding its flushed notification.
	gotC, gotKeyC, ok := store.Lookup(3)
	if !ok {
		t.Fatal("group C missing after flush")
	}
	if gotKeyC.LastNotificationDate != 3 {
		t.Errorf("C key date = %d, want 3", gotKeyC.LastNotificationDate)
	}
	if len(gotC.Notifications) != 1 || gotC.Notifications[0].ID != 3 {
		t.Errorf("C notifications = %+v, want single id 3", gotC.Notifications)
	}

	// A must still exist in the store (content persists, only visibility is withdrawn).
	if _, _, ok := store.Lookup(1); !ok {
		t.Error("group A must remain in store after eviction, only its visible window shrinks")
	}
}

// TestFlushSubBatchSplitBySettingsAndSilence — сценарий 4: pending-очередь
// содержит уведомления с разными парами (settings_dialog_id, is_silent);
// каждая непрерывная серия одной пары должна эмитить свой собственный
// GroupUpdate.
func TestFlushSubBatchSplitBySettingsAndSilence(t *testing.T) {
	t.Parallel()

	store := NewGroupStore()
	sink := newFakeSink()
	dialog := DialogID{Kind: DialogUser, ID: 1}
	settingsA := DialogID{Kind: DialogUser, ID: 1}
	settingsB := DialogID{Kind: DialogUser, ID: 2}
	tunables := Tunables{GroupCountMax: 5, GroupSizeMax: 10, KeepSize: 20}

	group, key := store.GetOrCreate(1, dialog)
	store.Remove(key)
	addPending(group, 1, 1, settingsA, false, &fakeNotificationType{label: "1"})
	addPending(group, 2, 2, settingsA, false, &fakeNotificationType{label: "2"})
	addPending(group, 3, 3, settingsB, true, &fakeNotificationType{label: "3"})
	addPending(group, 4, 4, settingsA, false, &fakeNotificationType{label: "4"})
	store.Insert(key, group)

	Flush(store, tunables, sink, 1)

	updates := sink.snapshotGroups()
	if len(updates) != 3 {
		t.Fatalf("got %d group updates, want 3 (runs: [1,2], [3], [4])", len(updates))
	}
	if len(updates[0].Added) != 2 || updates[0].IsSilent != false {
		t.Errorf("run 1 = %+v, want 2 items, not silent", updates[0])
	}
	if len(updates[1].Added) != 1 || updates[1].IsSilent != true {
		t.Errorf("run 2 = %+v, want 1 item, silent", updates[1])
	}
	if len(updates[2].Added) != 1 || updates[2].IsSilent != false {
		t.Errorf("run 3 = %+v, want 1 item, not silent", updates[2])
	}
	if updates[2].TotalCount != 4 {
		t.Errorf("final TotalCount = %d, want 4", updates[2].TotalCount)
	}
}

// TestFlushCapAndTrim — сценарий 6: max_size=3, двадцать уведомлений
// поступают в pending одной группы до единственного флаша. flushSubBatches
// добавляет все 20 в group.Notifications (полная история), но total_count
// продвигается только на 3 — сколько реально осталось в added_notifications
// после max_group_size cap (spec.md §4.6, P4). Затем Flush обнаруживает, что
// 20 > keep_size+extra_group_size (8+10=18), и подрезает историю до keep_size=8.
func TestFlushCapAndTrim(t *testing.T) {
	t.Parallel()

	store := NewGroupStore()
	sink := newFakeSink()
	dialog := DialogID{Kind: DialogUser, ID: 1}
	tunables := Tunables{GroupCountMax: 5, GroupSizeMax: 3, KeepSize: deriveKeepSize(3)}
	if tunables.KeepSize != 8 {
		t.Fatalf("deriveKeepSize(3) = %d, want 8", tunables.KeepSize)
	}

	group, key := store.GetOrCreate(1, dialog)
	store.Remove(key)
	for i := int32(1); i <= 20; i++ {
		addPending(group, NotificationID(i), i, dialog, false, &fakeNotificationType{label: "n"})
	}
	store.Insert(key, group)

	Flush(store, tunables, sink, 1)

	final, _, ok := store.Lookup(1)
	if !ok {
		t.Fatal("group missing after flush")
	}
	if int32(len(final.Notifications)) != tunables.KeepSize {
		t.Errorf("Notifications length = %d, want trimmed to KeepSize=%d", len(final.Notifications), tunables.KeepSize)
	}
	if final.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3 (advanced by post-cap added_notifications, not the raw run length)", final.TotalCount)
	}
	// The 8 survivors must be the most recent (highest ids), since trimming drops from the front.
	if final.Notifications[len(final.Notifications)-1].ID != 20 {
		t.Errorf("last surviving notification id = %d, want 20", final.Notifications[len(final.Notifications)-1].ID)
	}

	// Every emitted update's visible add-batch must respect max_group_size.
	for _, u := range sink.snapshotGroups() {
		if int32(len(u.Added)) > tunables.GroupSizeMax {
			t.Errorf("update %+v exceeds GroupSizeMax=%d", u, tunables.GroupSizeMax)
		}
	}
}

// TestFlushUnrenderableNotificationDropped проверяет, что уведомление, чей
// Render вернул nil, не попадает ни в Added, ни в group.Notifications, но
// остальные из того же суб-батча продолжают обрабатываться.
func TestFlushUnrenderableNotificationDropped(t *testing.T) {
	t.Parallel()

	store := NewGroupStore()
	sink := newFakeSink()
	dialog := DialogID{Kind: DialogUser, ID: 1}
	tunables := Tunables{GroupCountMax: 5, GroupSizeMax: 10, KeepSize: 20}

	group, key := store.GetOrCreate(1, dialog)
	store.Remove(key)
	addPending(group, 1, 1, dialog, false, &fakeNotificationType{label: "ok", renderFails: true})
	addPending(group, 2, 2, dialog, false, &fakeNotificationType{label: "ok"})
	store.Insert(key, group)

	Flush(store, tunables, sink, 1)

	updates := sink.snapshotGroups()
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if len(updates[0].Added) != 1 || updates[0].Added[0].ID != 2 {
		t.Errorf("Added = %+v, want only id 2", updates[0].Added)
	}

	final, _, _ := store.Lookup(1)
	if len(final.Notifications) != 1 || final.Notifications[0].ID != 2 {
		t.Errorf("Notifications = %+v, want only id 2 persisted", final.Notifications)
	}
}
