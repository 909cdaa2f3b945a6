package notify

import (
	"sync"
	"time"
)

// CloseFlag — предикат "процесс завершается", проверяемый таймерным
// колбэком перед тем, как трогать состояние движка (spec.md §6, §7
// "Close-flag set during timer").
type CloseFlag interface {
	IsClosing() bool
}

// TimerWheel — обёртка над "таймерным колесом" актёра: по одному
// одноразовому колбэку на group_id, с заменой прежнего таймера при
// повторном SetAt (spec.md §5 "the timer wheel's per-key replacement
// semantics are required").
type TimerWheel interface {
	SetAt(groupID NotificationGroupID, at float64, fire func(NotificationGroupID))
	Stop(groupID NotificationGroupID)
}

// timerWheel — продовая реализация TimerWheel поверх time.AfterFunc, по
// форме идентичная concurrency.Debouncer (мьютекс + карта active-таймеров по
// ключу), но с семантикой "раньше выигрывает" вместо "последнее слово
// выигрывает" у Debouncer: заменяет прежний таймер только если новое время
// раньше — эта проверка выполняется вызывающей стороной (PendingScheduler),
// сам SetAt безусловно переустанавливает таймер на переданное at, как того
// требует интерфейс Timer.set_at спецификации.
type timerWheel struct {
	mu     sync.Mutex
	timers map[NotificationGroupID]*time.Timer
	closed CloseFlag
}

// NewTimerWheel создаёт продовое таймерное колесо. closed может быть nil,
// тогда колбэки никогда не подавляются флагом закрытия.
func NewTimerWheel(closed CloseFlag) TimerWheel {
	return &timerWheel{
		timers: make(map[NotificationGroupID]*time.Timer),
		closed: closed,
	}
}

func (w *timerWheel) SetAt(groupID NotificationGroupID, at float64, fire func(NotificationGroupID)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.timers[groupID]; ok {
		prev.Stop()
	}

	delay := time.Duration((at - nowSeconds()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}

	w.timers[groupID] = time.AfterFunc(delay, func() {
		if w.closed != nil && w.closed.IsClosing() {
			return
		}
		fire(groupID)
	})
}

func (w *timerWheel) Stop(groupID NotificationGroupID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.timers[groupID]; ok {
		prev.Stop()
		delete(w.timers, groupID)
	}
}

func nowSeconds() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// PendingScheduler реализует §4.4 шаги 3-5: вычисляет момент флаша и
// планирует его через TimerWheel с семантикой "раньше выигрывает" —
// последующие add_notification никогда не откладывают уже запланированный
// более ранний флаш, но более ранний flush_at всегда вытесняет более поздний.
type PendingScheduler struct {
	wheel TimerWheel
}

// NewPendingScheduler оборачивает переданное таймерное колесо.
func NewPendingScheduler(wheel TimerWheel) *PendingScheduler {
	return &PendingScheduler{wheel: wheel}
}

// Schedule обновляет group.PendingFlushTime и (пере)ставит таймер, если
// flushAt раньше уже запланированного момента, либо флаш ещё не запланирован
// (PendingFlushTime == 0, инвариант I1).
func (s *PendingScheduler) Schedule(groupID NotificationGroupID, group *Group, flushAt float64, onFire func(NotificationGroupID)) {
	if group.PendingFlushTime == 0 || flushAt < group.PendingFlushTime {
		group.PendingFlushTime = flushAt
		s.wheel.SetAt(groupID, flushAt, onFire)
	}
}
