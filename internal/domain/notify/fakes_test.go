package notify

import "sync"

// fakeKV — хранилище в памяти для тестов аллокатора и менеджера.
type fakeKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{values: make(map[string]string)} }

func (f *fakeKV) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

// fakeClock — управляемые вручную монотонные и серверные часы.
type fakeClock struct {
	mu     sync.Mutex
	now    float64
	server float64
}

func (c *fakeClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) ServerTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

func (c *fakeClock) Set(now, server float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	c.server = server
}

// fakePresence — фиксированный снимок присутствия.
type fakePresence struct {
	status Presence
}

func (p *fakePresence) GetMyStatus() Presence { return p.status }

// fakeSession — управляемый флаг бот-сессии.
type fakeSession struct {
	bot bool
}

func (s *fakeSession) IsBot() bool { return s.bot }

// fakeSink собирает эмитированные обновления для проверки в тестах.
type fakeSink struct {
	mu      sync.Mutex
	groups  []GroupUpdate
	singles []SingleUpdate
}

func newFakeSink() *fakeSink { return &fakeSink{} }

func (s *fakeSink) SendGroupUpdate(u GroupUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, u)
}

func (s *fakeSink) SendSingleUpdate(u SingleUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.singles = append(s.singles, u)
}

func (s *fakeSink) snapshotGroups() []GroupUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GroupUpdate, len(s.groups))
	copy(out, s.groups)
	return out
}

// fakeNotificationType — управляемая реализация NotificationType для тестов:
// Render можно заставить вернуть nil, чтобы проверить путь "unrenderable".
type fakeNotificationType struct {
	label       string
	delayable   bool
	renderFails bool
}

func (t *fakeNotificationType) CanBeDelayed() bool { return t.delayable }

func (t *fakeNotificationType) Render(dialog DialogID) *RenderedContent {
	if t.renderFails {
		return nil
	}
	return &RenderedContent{Title: dialog.String(), Body: t.label}
}

func (t *fakeNotificationType) String() string { return t.label }

// fakeTimerWheel записывает все SetAt/Stop вызовы, не планируя реальных
// таймеров — нужен для тестирования PendingScheduler без ожидания времени.
type fakeTimerWheel struct {
	mu       sync.Mutex
	setCalls []fakeSetCall
	stopped  []NotificationGroupID
}

type fakeSetCall struct {
	groupID NotificationGroupID
	at      float64
}

func (w *fakeTimerWheel) SetAt(groupID NotificationGroupID, at float64, fire func(NotificationGroupID)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setCalls = append(w.setCalls, fakeSetCall{groupID: groupID, at: at})
}

func (w *fakeTimerWheel) Stop(groupID NotificationGroupID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = append(w.stopped, groupID)
}

func (w *fakeTimerWheel) lastSetAt(groupID NotificationGroupID) (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var last float64
	found := false
	for _, c := range w.setCalls {
		if c.groupID == groupID {
			last = c.at
			found = true
		}
	}
	return last, found
}
