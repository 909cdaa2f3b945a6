package notify

import (
	"sync"

	"telegram-userbot/internal/infra/config"
	"telegram-userbot/internal/infra/logger"
)

// Tunables — пять параметров §4.2, приведённые к типам движка, плюс
// производный keepSize.
type Tunables struct {
	GroupCountMax        int32
	GroupSizeMax         int32
	OnlineCloudTimeoutMS int32
	CloudDelayMS         int32
	DefaultDelayMS       int32
	KeepSize             int32
}

// deriveKeepSize реализует формулу §4.2:
// keep_size <- max_size + max(EXTRA_GROUP_SIZE/2, min(max_size, EXTRA_GROUP_SIZE)).
func deriveKeepSize(maxSize int32) int32 {
	const extra = extraGroupSize
	minSizeExtra := maxSize
	if minSizeExtra > extra {
		minSizeExtra = extra
	}
	half := int32(extra / 2)
	if minSizeExtra > half {
		half = minSizeExtra
	}
	return maxSize + half
}

func tunablesFromEnv(env config.EnvConfig) Tunables {
	t := Tunables{
		GroupCountMax:        int32(env.Notify.GroupCountMax),
		GroupSizeMax:         int32(env.Notify.GroupSizeMax),
		OnlineCloudTimeoutMS: int32(env.Notify.OnlineCloudTimeoutMS),
		CloudDelayMS:         int32(env.Notify.CloudDelayMS),
		DefaultDelayMS:       int32(env.Notify.DefaultDelayMS),
	}
	t.KeepSize = deriveKeepSize(t.GroupSizeMax)
	return t
}

// ConfigMirror отражает пять тюнингов §4.2 и реагирует на config.Reload через
// config.OnChange — аналог on_notification_group_count_max_changed и
// соседних хуков исходного клиента. Значения читаются под мьютексом, потому
// что колбэк OnChange срабатывает не на потоке актёра notify.Manager.
type ConfigMirror struct {
	mu       sync.RWMutex
	current  Tunables
	onChange func(old, new Tunables)
}

// NewConfigMirror строит зеркало конфигурации, инициализируясь текущим
// config.Env(), и подписывается на последующие Reload. onChange (может быть
// nil) уведомляется о каждом применённом изменении. Manager передаёт nil и
// читает актуальные значения через Get() при каждой операции.
func NewConfigMirror(onChange func(old, new Tunables)) *ConfigMirror {
	m := &ConfigMirror{
		current:  tunablesFromEnv(config.Env()),
		onChange: onChange,
	}
	config.OnChange(m.handleReload)
	return m
}

func (m *ConfigMirror) handleReload(env config.EnvConfig) {
	next := tunablesFromEnv(env)

	m.mu.Lock()
	old := m.current
	m.current = next
	m.mu.Unlock()

	if old.GroupCountMax != next.GroupCountMax {
		logger.Infof("notify: notification_group_count_max changed %d -> %d", old.GroupCountMax, next.GroupCountMax)
	}
	if old.GroupSizeMax != next.GroupSizeMax {
		logger.Infof("notify: notification_group_size_max changed %d -> %d (keep_size %d -> %d)",
			old.GroupSizeMax, next.GroupSizeMax, old.KeepSize, next.KeepSize)
	}
	if m.onChange != nil && old != next {
		m.onChange(old, next)
	}
}

// Get возвращает текущий снимок тюнингов.
func (m *ConfigMirror) Get() Tunables {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
