package notify

import "telegram-userbot/internal/infra/clock"

// systemClock — продовая реализация Clock поверх internal/infra/clock.
// Оба метода в этом клиенте физически совпадают (см. clock.go), но движок
// обращается к ним раздельно, чтобы можно было развести их в тестах и если
// когда-нибудь появится отдельная оценка серверного времени.
type systemClock struct{}

// SystemClock возвращает продовую реализацию Clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() float64        { return clock.MonotonicNow() }
func (systemClock) ServerTime() float64 { return clock.ServerTimeCached() }
