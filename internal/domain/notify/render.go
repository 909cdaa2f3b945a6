package notify

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"

	"telegram-userbot/internal/domain/filters"
	"telegram-userbot/internal/domain/notifications"
	"telegram-userbot/internal/infra/logger"
	"telegram-userbot/internal/infra/telegram/peersmgr"
	"telegram-userbot/internal/infra/throttle"
)

// MessageNotification — конкретная реализация NotificationType для одного
// входящего сообщения, прошедшего фильтр. Рендеринг переиспользует ровно те
// же помощники, что и прежний прямой путь доставки (notifications.RenderTemplate
// / notifications.BuildMessageLink), но за троттлером: при флаше группы
// разом может рендериться до пары сотен накопленных pending-элементов, и
// каждый Render способен упасть в peersmgr.Service.ResolvePeer с сетевым
// запросом, если пира ещё нет в кэше.
type MessageNotification struct {
	template  string
	msg       *tg.Message
	entities  tg.Entities
	match     filters.Result
	peers     *peersmgr.Service
	throttler *throttle.Throttler
}

// NewMessageNotification оборачивает уже сматченное сообщение в NotificationType.
func NewMessageNotification(template string, msg *tg.Message, entities tg.Entities, match filters.Result,
	peers *peersmgr.Service, throttler *throttle.Throttler) *MessageNotification {
	return &MessageNotification{
		template:  template,
		msg:       msg,
		entities:  entities,
		match:     match,
		peers:     peers,
		throttler: throttler,
	}
}

// CanBeDelayed сообщает, что сообщение допускает откладываемую доставку.
// Сообщения с TTL (self-destruct таймером) не откладываются — к моменту
// срабатывания задержки они уже могут быть недоступны для рендеринга.
func (n *MessageNotification) CanBeDelayed() bool {
	return n.msg.TTLPeriod == 0
}

// Render строит RenderedContent через шаблон уведомлений. Ссылка на
// сообщение резолвится через peersmgr под троттлером, чтобы залповый флаш
// большой группы не забил peersmgr.Service.ResolvePeer сетевыми вызовами
// быстрее нескольких в секунду. Ошибка троттлера (например, контекст истёк)
// трактуется как неудачный рендер: уведомление молча выпадает из батча
// (spec.md §7 "Render failure").
func (n *MessageNotification) Render(dialog DialogID) *RenderedContent {
	var link string
	err := n.throttler.Do(context.Background(), func() error {
		link = notifications.BuildMessageLink(n.peers, n.entities, n.msg)
		return nil
	})
	if err != nil {
		logger.Warnf("notify: render throttled out for message %d in %s: %v", n.msg.ID, dialog, err)
		return nil
	}

	body := notifications.RenderTemplate(n.template, n.match, link)
	if body == "" {
		return nil
	}

	return &RenderedContent{
		Title:       dialog.String(),
		Body:        body,
		MessageLink: link,
	}
}

func (n *MessageNotification) String() string {
	return fmt.Sprintf("message#%d(%s)", n.msg.ID, n.match.RegexMatch)
}
