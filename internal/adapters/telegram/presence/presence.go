// Package presence адаптирует статус online/offline юзербота к
// notify.PresenceOracle: движку агрегации уведомлений (internal/domain/notify)
// нужен снимок присутствия пользователя, чтобы решать между "cloud"-задержкой
// уведомления и обычной (spec.md §4.2 delayMS).
package presence

import (
	"telegram-userbot/internal/domain/notify"
	"telegram-userbot/internal/infra/telegram/status"
)

// Oracle реализует notify.PresenceOracle поверх internal/infra/telegram/status.
// В отличие от Telegram Desktop, юзербот обычно работает как единственная
// активная сессия аккаунта: у нас нет отдельного канала апдейтов о статусе
// "другой сессии того же аккаунта" (Bot API/MTProto не сообщают такого для
// собственного аккаунта напрямую), поэтому локальный и удалённый снимки
// присутствия совпадают.
type Oracle struct{}

// New создаёт оракул присутствия, отражающий состояние глобального
// status-менеджера текущего процесса.
func New() *Oracle {
	return &Oracle{}
}

// GetMyStatus возвращает текущий снимок присутствия для движка уведомлений.
func (o *Oracle) GetMyStatus() notify.Presence {
	online := status.IsOnline()
	lastOnline := status.LastOnlineUnix()
	return notify.Presence{
		IsOnlineLocal:   online,
		IsOnlineRemote:  online,
		WasOnlineLocal:  lastOnline,
		WasOnlineRemote: lastOnline,
	}
}
