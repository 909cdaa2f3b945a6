package notify

import (
	"strconv"
	"sync"

	"telegram-userbot/internal/infra/logger"
)

// KV — минимальный durable key-value контракт, которого достаточно движку
// для монотонных счётчиков. Реализуется storage.KVStore; выделен как
// маленький интерфейс в самом notify, чтобы пакет не тянул storage/bbolt
// напрямую в свои сигнатуры и оставался тестируемым на фейках.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// AuthSession — предикат "текущая сессия ботовая". У бот-сессий движок
// уведомлений — no-op (спецификация §7 "Disabled session").
type AuthSession interface {
	IsBot() bool
}

const (
	notificationIDKey      = "notification_id_current"
	notificationGroupIDKey = "notification_group_id_current"

	// maxCounterValue — верхняя граница перед оборотом: 2^31 - 1.
	maxCounterValue = 0x7FFFFFFF
)

// idAllocator — независимый монотонный счётчик с оборотом по модулю
// 2^31-1, durable через KV. Используется дважды: для NotificationID и для
// NotificationGroupID (непересекающиеся пространства имён, но одинаковая логика).
type idAllocator struct {
	mu      sync.Mutex
	kv      KV
	key     string
	current int32
	label   string // для логов: "notification" | "group"
}

// newIDAllocator читает стартовое значение из KV (отсутствие/пустая строка -> 0)
// и готовит счётчик к работе. Ошибка чтения не фатальна: считаем, что счётчик
// не персистировался и начинаем с нуля, залогировав это как предупреждение.
func newIDAllocator(kv KV, key, label string) *idAllocator {
	a := &idAllocator{kv: kv, key: key, label: label}
	raw, err := kv.Get(key)
	if err != nil {
		logger.Warnf("notify: %s allocator: failed to read durable counter %s: %v; starting from 0", label, key, err)
		return a
	}
	if raw == "" {
		return a
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 || v > maxCounterValue {
		logger.Warnf("notify: %s allocator: durable counter %s has invalid value %q; starting from 0", label, key, raw)
		return a
	}
	a.current = int32(v)
	return a
}

// next возвращает очередной валидный (ненулевой) идентификатор: c <- (c mod (2^31-1)) + 1,
// синхронно пишет новое значение в KV. Если запись не удалась, значение всё
// равно возвращается (в памяти счётчик уже продвинут) — согласно
// спецификации durable-запись это "last-writer-wins, best effort", а не
// транзакционная гарантия.
func (a *idAllocator) next() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.current = (a.current % maxCounterValue) + 1
	if err := a.kv.Set(a.key, strconv.FormatInt(int64(a.current), 10)); err != nil {
		logger.Errorf("notify: %s allocator: failed to persist durable counter %s=%d: %v", a.label, a.key, a.current, err)
	}
	return a.current
}

// IDAllocator — публичная обёртка над двумя idAllocator (для уведомлений и
// групп), плюс проверка бот-сессии из §4.1: "Fails silently (returns sentinel)
// when the session is a bot session."
type IDAllocator struct {
	session      AuthSession
	notification *idAllocator
	group        *idAllocator
}

// NewIDAllocator создаёт аллокатор поверх общего KV-хранилища kv, читая оба
// счётчика при старте (соответствует §4.1 "initialized at startup by parsing
// the durable string entries").
func NewIDAllocator(kv KV, session AuthSession) *IDAllocator {
	return &IDAllocator{
		session:      session,
		notification: newIDAllocator(kv, notificationIDKey, "notification"),
		group:        newIDAllocator(kv, notificationGroupIDKey, "group"),
	}
}

// NextNotificationID выделяет новый NotificationID, либо 0 (sentinel) для
// бот-сессии.
func (a *IDAllocator) NextNotificationID() NotificationID {
	if a.session != nil && a.session.IsBot() {
		return 0
	}
	return NotificationID(a.notification.next())
}

// NextGroupID выделяет новый NotificationGroupID, либо 0 (sentinel) для
// бот-сессии.
func (a *IDAllocator) NextGroupID() NotificationGroupID {
	if a.session != nil && a.session.IsBot() {
		return 0
	}
	return NotificationGroupID(a.group.next())
}
