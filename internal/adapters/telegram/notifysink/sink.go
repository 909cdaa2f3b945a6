// Package notifysink реализует notify.UpdateSink: приёмник диффовых
// обновлений групп уведомлений, эмитируемых движком агрегации
// (internal/domain/notify). Юзербот не имеет собственного UI для отрисовки
// всплывающих уведомлений — фактическая доставка текста подписчику уже
// выполняется отдельным путём через internal/domain/notifications.Queue (см.
// internal/domain/updates.Handlers.OnNewMessage), а этот sink лишь
// протоколирует решения движка группировки для отладки (команда CLI
// "notifygroups" читает текущее окно видимости напрямую из notify.Manager).
package notifysink

import (
	"telegram-userbot/internal/domain/notify"
	"telegram-userbot/internal/infra/logger"
)

// LoggingSink пишет каждое исходящее обновление движка уведомлений в лог на
// уровне Debug — этого достаточно, чтобы отслеживать поведение группировки
// (инварианты P1-P3) без дублирования реальной доставки сообщений.
type LoggingSink struct{}

// New создаёт логирующую реализацию notify.UpdateSink.
func New() *LoggingSink { return &LoggingSink{} }

// SendGroupUpdate логирует диффовое обновление группы: сколько добавлено,
// сколько убрано, и итоговый total_count.
func (LoggingSink) SendGroupUpdate(u notify.GroupUpdate) {
	logger.Debugf("notify: group %s dialog=%s total=%d added=%d removed=%d silent=%t",
		u.GroupID, u.DialogID, u.TotalCount, len(u.Added), len(u.RemovedIDs), u.IsSilent)
}

// SendSingleUpdate логирует точечное обновление одного уведомления в группе.
func (LoggingSink) SendSingleUpdate(u notify.SingleUpdate) {
	logger.Debugf("notify: single update group=%s notification=%s", u.GroupID, u.Notification.ID)
}
