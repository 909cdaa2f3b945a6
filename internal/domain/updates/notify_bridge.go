// Package updates / файл notify_bridge.go подключает движок агрегации
// уведомлений (internal/domain/notify) к обработчикам входящих апдейтов.
// Это отдельный от очереди доставки (h.notif) путь: notify.Manager не
// отправляет ничего в Telegram, он только поддерживает локальное окно
// видимости групп/уведомлений (CLI/веб-слой читает его через VisibleGroups).
package updates

import (
	"telegram-userbot/internal/domain/filters"
	"telegram-userbot/internal/domain/notify"
	"telegram-userbot/internal/domain/tgutil"

	"github.com/gotd/td/tg"
)

// notifyRef запоминает, под какими group_id/notification_id движок уже
// зарегистрировал пару (сообщение, фильтр) — нужно, чтобы повторное
// срабатывание того же фильтра на редактировании било в EditNotification,
// а не заводило дубликат через AddNotification.
type notifyRef struct {
	groupID notify.NotificationGroupID
	notifID notify.NotificationID
}

// dialogFromPeer переносит tg.PeerClass в notify.DialogID. Секретные чаты
// недостижимы через этот MTProto-клиент (нет отдельного апдейта для них),
// поэтому DialogSecretChat здесь никогда не конструируется.
func dialogFromPeer(peer tg.PeerClass) notify.DialogID {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return notify.DialogID{Kind: notify.DialogUser, ID: p.UserID}
	case *tg.PeerChat:
		return notify.DialogID{Kind: notify.DialogChat, ID: p.ChatID}
	case *tg.PeerChannel:
		return notify.DialogID{Kind: notify.DialogChannel, ID: p.ChannelID}
	default:
		return notify.DialogID{Kind: notify.DialogUser, ID: tgutil.GetPeerID(peer)}
	}
}

// notifiedKey строит тот же ключ, что hasNotified/markNotified, чтобы
// notifyIDs и notified оставались согласованы для одной и той же пары
// (сообщение, фильтр).
func notifiedKey(msg *tg.Message, filterID string) string {
	return formatNotifiedKey(tgutil.GetPeerID(msg.PeerID), msg.ID, filterID)
}

// dialogGroupID возвращает стабильный group_id для диалога, при первом
// обращении выделяя новый через notifyMgr.AllocateGroupID(). Один диалог —
// одна группа уведомлений, как у оригинального NotificationManager.
func (h *Handlers) dialogGroupID(dialog notify.DialogID) notify.NotificationGroupID {
	h.dialogGroupsMu.Lock()
	defer h.dialogGroupsMu.Unlock()

	if id, ok := h.dialogGroups[dialog]; ok {
		return id
	}
	id := h.notifyMgr.AllocateGroupID()
	h.dialogGroups[dialog] = id
	return id
}

// feedNotifyEngine регистрирует совпадение фильтра в движке агрегации:
// впервые увиденная пара (сообщение, фильтр) заводит новое уведомление
// через AddNotification, повторное срабатывание (правка того же сообщения)
// обновляет уже принятое через EditNotification. No-op, если notifyMgr не
// сконфигурирован (например, в модульных тестах Handlers).
func (h *Handlers) feedNotifyEngine(msg *tg.Message, entities tg.Entities, res filters.FilterMatchResult) {
	if h.notifyMgr == nil {
		return
	}

	dialog := dialogFromPeer(msg.PeerID)
	key := notifiedKey(msg, res.Filter.ID)

	h.notifyIDsMu.Lock()
	ref, exists := h.notifyIDs[key]
	h.notifyIDsMu.Unlock()

	typ := notify.NewMessageNotification(res.Filter.Notify.Template, msg, entities, res.Result, h.peers, h.throttler)

	if exists {
		h.notifyMgr.EditNotification(ref.groupID, ref.notifID, typ)
		return
	}

	groupID := h.dialogGroupID(dialog)
	notifID := h.notifyMgr.AllocateNotificationID()
	if !groupID.Valid() || !notifID.Valid() {
		// Бот-сессия: движок отключён (§7), Allocate* вернули сентинел 0,
		// AddNotification ниже был бы no-op. Не запоминаем notifyIDs, иначе
		// следующая правка того же сообщения попадёт в ветку exists и
		// вызовет EditNotification(0, 0, ...).
		return
	}
	// settings_dialog_id совпадает с самим диалогом: у этого клиента нет
	// понятия "обсуждение канала как отдельная сущность настроек тишины".
	h.notifyMgr.AddNotification(groupID, dialog, int32(msg.Date), dialog, msg.Silent, notifID, typ)

	h.notifyIDsMu.Lock()
	h.notifyIDs[key] = notifyRef{groupID: groupID, notifID: notifID}
	h.notifyIDsMu.Unlock()
}
