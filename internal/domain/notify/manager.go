package notify

import (
	"github.com/go-faster/errors"

	"telegram-userbot/internal/infra/logger"
)

// defaultUpdateBufferCap — ёмкость кольцевого буфера обновлений, копящихся,
// пока Manager приостановлен через Suspend (см. §6.3 SPEC_FULL.md). Старые
// элементы вытесняются новыми с предупреждением в лог, а не блокировкой.
const defaultUpdateBufferCap = 256

// PresenceOracle — оракул многоустройственного присутствия пользователя
// (spec.md §6 "Presence.get_my_status()").
type PresenceOracle interface {
	GetMyStatus() Presence
}

type bufferedUpdate struct {
	group  *GroupUpdate
	single *SingleUpdate
}

// Manager — единственная точка входа движка: актёр с почтовым ящиком
// (mailbox) на одну горутину, в духе status.StatusManager.run() —
// однопоточная кооперативная модель без внутренних блокировок над
// GroupStore/Group (spec.md §5). Публичные методы либо синхронно
// прогоняют операцию через mailbox (do/doErr), либо (для чисто
// счётчиковых операций аллокатора) обращаются напрямую к потокобезопасному
// IDAllocator, минуя mailbox.
type Manager struct {
	mailbox chan func()
	done    chan struct{}

	store        *GroupStore
	allocator    *IDAllocator
	configMirror *ConfigMirror
	scheduler    *PendingScheduler
	clock        Clock
	presence     PresenceOracle
	session      AuthSession
	sink         UpdateSink

	suspended bool
	buffer    []bufferedUpdate
	bufferCap int
}

// NewManager собирает движок со всеми внешними коллабораторами: kv — durable
// хранилище счётчиков, session — предикат бот-сессии, presence — оракул
// присутствия, clock — источник времени, sink — приёмник обновлений (обычно
// CLI/веб-слой). Запускает мейлбокс-горутину немедленно.
func NewManager(kv KV, session AuthSession, presence PresenceOracle, clock Clock, sink UpdateSink) *Manager {
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
	m.configMirror = NewConfigMirror(nil)
	m.scheduler = NewPendingScheduler(NewTimerWheel(m))
	go m.run()
	return m
}

func (m *Manager) run() {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("notify: mailbox panic: %v", r)
			panic(r)
		}
	}()
	for {
		select {
		case fn := <-m.mailbox:
			fn()
		case <-m.done:
			return
		}
	}
}

// Stop останавливает мейлбокс-горутину. Не выполняет форсированный флаш
// накопленных pending-уведомлений (spec.md §5 "Resource release").
func (m *Manager) Stop() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

// IsClosing реализует CloseFlag для TimerWheel.
func (m *Manager) IsClosing() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *Manager) enqueue(fn func()) {
	select {
	case m.mailbox <- fn:
	case <-m.done:
	}
}

func (m *Manager) do(fn func()) {
	replied := make(chan struct{})
	m.enqueue(func() { fn(); close(replied) })
	select {
	case <-replied:
	case <-m.done:
	}
}

func (m *Manager) doErr(fn func() error) error {
	result := make(chan error, 1)
	m.enqueue(func() { result <- fn() })
	select {
	case err := <-result:
		return err
	case <-m.done:
		return nil
	}
}

// AllocateGroupID выделяет NotificationGroupID напрямую через IDAllocator,
// минуя mailbox — счётчик потокобезопасен сам по себе (§4.1).
func (m *Manager) AllocateGroupID() NotificationGroupID { return m.allocator.NextGroupID() }

// AllocateNotificationID выделяет NotificationID тем же образом.
func (m *Manager) AllocateNotificationID() NotificationID { return m.allocator.NextNotificationID() }

// AddNotification реализует §4.4 add_notification. Вызывающий уже выделил
// groupID/notifID через Allocate* и владеет typ эксклюзивно, передавая его сюда.
func (m *Manager) AddNotification(groupID NotificationGroupID, dialogID DialogID, date int32,
	settingsDialogID DialogID, isSilent bool, notifID NotificationID, typ NotificationType) {
	if m.session != nil && m.session.IsBot() {
		return
	}
	assertContract(groupID.Valid(), "AddNotification", "invalid group id")
	assertContract(notifID.Valid(), "AddNotification", "invalid notification id")
	assertContract(typ != nil, "AddNotification", "nil notification type")

	m.do(func() {
		group, _ := m.store.GetOrCreate(groupID, dialogID)
		tunables := m.configMirror.Get()

		var presence Presence
		if m.presence != nil {
			presence = m.presence.GetMyStatus()
		}

		delay := delayMS(dialogID.Kind, typ.CanBeDelayed(), presence, delayParams{
			CloudDelayMS:         tunables.CloudDelayMS,
			DefaultDelayMS:       tunables.DefaultDelayMS,
			OnlineCloudTimeoutMS: tunables.OnlineCloudTimeoutMS,
		}, m.clock.ServerTime(), date)

		flushAt := m.clock.Now() + float64(delay)/1000
		m.scheduler.Schedule(groupID, group, flushAt, m.onTimerFire)

		group.PendingNotifications = append(group.PendingNotifications, PendingNotification{
			ID:               notifID,
			Type:             typ,
			Date:             date,
			SettingsDialogID: settingsDialogID,
			IsSilent:         isSilent,
		})
		logger.Debugf("notify: queued %s in %s, flush in %dms", notifID, groupID, delay)
	})
}

func (m *Manager) onTimerFire(groupID NotificationGroupID) {
	m.enqueue(func() {
		tunables := m.configMirror.Get()
		Flush(m.store, tunables, m, groupID)
	})
}

// EditNotification реализует §4.8. Соответствует явному тексту
// спецификации ("irrespective of whether the match was in the visible
// suffix, continue scanning pending_notifications"), а не буквальному
// раннему return исходника.
func (m *Manager) EditNotification(groupID NotificationGroupID, notifID NotificationID, typ NotificationType) {
	if m.session != nil && m.session.IsBot() {
		return
	}
	assertContract(notifID.Valid(), "EditNotification", "invalid notification id")
	assertContract(typ != nil, "EditNotification", "nil notification type")

	m.do(func() {
		group, key, ok := m.store.Lookup(groupID)
		if !ok {
			return
		}
		tunables := m.configMirror.Get()

		for i := range group.Notifications {
			if group.Notifications[i].ID != notifID {
				continue
			}
			group.Notifications[i].Type = typ
			if int32(len(group.Notifications)-i) <= tunables.GroupSizeMax {
				if rendered := typ.Render(key.DialogID); rendered != nil {
					m.SendSingleUpdate(SingleUpdate{
						GroupID:      groupID,
						Notification: AddedNotification{ID: notifID, Rendered: rendered},
					})
				}
			}
		}
		for i := range group.PendingNotifications {
			if group.PendingNotifications[i].ID == notifID {
				group.PendingNotifications[i].Type = typ
			}
		}
	})
}

// RemoveNotification реализует §4.9 + §6.1 SPEC_FULL.md: удаляет одно
// уведомление из истории и очереди группы, декрементирует total_count и
// эмитит removal-обновление только если удалённый элемент был в видимом
// хвосте. Нулевой идентификатор — пользовательская ошибка ErrInvalidID;
// неизвестная группа или неизвестное уведомление — no-op без ошибки.
func (m *Manager) RemoveNotification(groupID NotificationGroupID, notifID NotificationID) error {
	if !notifID.Valid() {
		return errors.Wrap(ErrInvalidID, "RemoveNotification")
	}
	return m.doErr(func() error {
		if m.session != nil && m.session.IsBot() {
			return nil
		}
		group, key, ok := m.store.Lookup(groupID)
		if !ok {
			return nil
		}
		tunables := m.configMirror.Get()

		var removedVisible []NotificationID
		kept := group.Notifications[:0:0]
		for i, n := range group.Notifications {
			if n.ID != notifID {
				kept = append(kept, n)
				continue
			}
			if int32(len(group.Notifications)-i) <= tunables.GroupSizeMax {
				removedVisible = append(removedVisible, n.ID)
			}
		}
		group.Notifications = kept

		keptPending := group.PendingNotifications[:0:0]
		for _, pn := range group.PendingNotifications {
			if pn.ID != notifID {
				keptPending = append(keptPending, pn)
			}
		}
		group.PendingNotifications = keptPending

		if len(removedVisible) > 0 {
			group.TotalCount -= int32(len(removedVisible))
			if group.TotalCount < 0 {
				group.TotalCount = 0
			}
			m.SendGroupUpdate(GroupUpdate{
				GroupID:          key.GroupID,
				DialogID:         key.DialogID,
				SettingsDialogID: key.DialogID,
				IsSilent:         true,
				TotalCount:       group.TotalCount,
				RemovedIDs:       removedVisible,
			})
		}
		return nil
	})
}

// RemoveNotificationGroup реализует §4.9 + §6.1: удаляет все уведомления
// группы с id <= maxNotifID (TDLib's "mark read up to X" семантика),
// декрементируя total_count и эмитя единственное removal-обновление для
// затронутых видимых элементов.
func (m *Manager) RemoveNotificationGroup(groupID NotificationGroupID, maxNotifID NotificationID) error {
	if !maxNotifID.Valid() {
		return errors.Wrap(ErrInvalidID, "RemoveNotificationGroup")
	}
	return m.doErr(func() error {
		if m.session != nil && m.session.IsBot() {
			return nil
		}
		group, key, ok := m.store.Lookup(groupID)
		if !ok {
			return nil
		}
		tunables := m.configMirror.Get()

		var removedVisible []NotificationID
		kept := group.Notifications[:0:0]
		for i, n := range group.Notifications {
			if n.ID > maxNotifID {
				kept = append(kept, n)
				continue
			}
			if int32(len(group.Notifications)-i) <= tunables.GroupSizeMax {
				removedVisible = append(removedVisible, n.ID)
			}
		}
		group.Notifications = kept

		keptPending := group.PendingNotifications[:0:0]
		for _, pn := range group.PendingNotifications {
			if pn.ID > maxNotifID {
				keptPending = append(keptPending, pn)
			}
		}
		group.PendingNotifications = keptPending

		if len(removedVisible) > 0 {
			group.TotalCount -= int32(len(removedVisible))
			if group.TotalCount < 0 {
				group.TotalCount = 0
			}
			m.SendGroupUpdate(GroupUpdate{
				GroupID:          key.GroupID,
				DialogID:         key.DialogID,
				SettingsDialogID: key.DialogID,
				IsSilent:         true,
				TotalCount:       group.TotalCount,
				RemovedIDs:       removedVisible,
			})
		}
		return nil
	})
}

// Suspend приостанавливает эмиссию обновлений во внешний sink, накапливая их
// в кольцевом буфере — используется, пока update-manager клиента разбирает
// разрыв последовательности апдейтов (см. §6.3 SPEC_FULL.md).
func (m *Manager) Suspend() {
	m.do(func() { m.suspended = true })
}

// Resume возобновляет эмиссию и синхронно сбрасывает всё накопленное в буфере.
func (m *Manager) Resume() {
	m.do(func() {
		m.suspended = false
		buffered := m.buffer
		m.buffer = nil
		for _, u := range buffered {
			if u.group != nil {
				m.sink.SendGroupUpdate(*u.group)
			}
			if u.single != nil {
				m.sink.SendSingleUpdate(*u.single)
			}
		}
	})
}

func (m *Manager) pushBuffer(u bufferedUpdate) {
	if len(m.buffer) >= m.bufferCap {
		logger.Warnf("notify: update buffer full (%d), dropping oldest buffered update", m.bufferCap)
		m.buffer = m.buffer[1:]
	}
	m.buffer = append(m.buffer, u)
}

// SendGroupUpdate реализует UpdateSink для внутреннего использования flush.go:
// либо форвардит в реальный sink, либо буферизует, если Suspend активен.
func (m *Manager) SendGroupUpdate(u GroupUpdate) {
	if m.suspended {
		m.pushBuffer(bufferedUpdate{group: &u})
		return
	}
	m.sink.SendGroupUpdate(u)
}

// SendSingleUpdate — аналог SendGroupUpdate для точечных обновлений.
func (m *Manager) SendSingleUpdate(u SingleUpdate) {
	if m.suspended {
		m.pushBuffer(bufferedUpdate{single: &u})
		return
	}
	m.sink.SendSingleUpdate(u)
}

// GroupSnapshot — отладочный срез видимого окна для CLI-команды
// notifygroups: group_id, dialog_id, сколько показано/всего.
type GroupSnapshot struct {
	GroupID    NotificationGroupID
	DialogID   DialogID
	Shown      int
	TotalCount int32
}

// VisibleGroups возвращает снимок текущего окна видимости.
func (m *Manager) VisibleGroups() []GroupSnapshot {
	var out []GroupSnapshot
	m.do(func() {
		tunables := m.configMirror.Get()
		for _, key := range m.store.VisibleKeys(tunables.GroupCountMax) {
			group, _, ok := m.store.Lookup(key.GroupID)
			if !ok {
				continue
			}
			shown := len(group.Notifications)
			if int32(shown) > tunables.GroupSizeMax {
				shown = int(tunables.GroupSizeMax)
			}
			out = append(out, GroupSnapshot{
				GroupID:    key.GroupID,
				DialogID:   key.DialogID,
				Shown:      shown,
				TotalCount: group.TotalCount,
			})
		}
	})
	return out
}
