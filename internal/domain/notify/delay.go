package notify

// minNotificationDelayMS — MIN_NOTIFICATION_DELAY_MS спецификации: гарантирует,
// что запланированный флаш никогда не окажется в прошлом момент запуска таймера.
const minNotificationDelayMS = 1000

// Clock абстрагирует доступ ко времени для тестируемости движка (см.
// SPEC_FULL.md §2.4). Now — монотонные секунды для планирования, ServerTime —
// секунды "серверного" времени для арифметики политики задержки. В проде оба
// backed by time.Now() (см. internal/infra/clock), в тестах — фейком.
type Clock interface {
	Now() float64
	ServerTime() float64
}

// Presence — снимок многоустройственного онлайн-статуса пользователя,
// возвращаемый оракулом присутствия. Значения WasOnlineLocal/WasOnlineRemote —
// unix-секунды последнего момента "был онлайн" на соответствующей стороне.
type Presence struct {
	IsOnlineLocal   bool
	IsOnlineRemote  bool
	WasOnlineLocal  float64
	WasOnlineRemote float64
}

// delayParams — пять параметров §4.2, нужные чистой функции delayMS.
type delayParams struct {
	CloudDelayMS         int32
	DefaultDelayMS       int32
	OnlineCloudTimeoutMS int32
}

// delayMS — чистая функция политики задержки (spec.md §4.3). dialogKind
// определяет секретный чат (всегда 0 задержки); canBeDelayed — способность
// типа уведомления откладываться; presence — состояние присутствия;
// serverTimeNow — текущее серверное время в секундах; pendingDate — дата
// уведомления (unix-секунды).
func delayMS(dialogKind DialogKind, canBeDelayed bool, presence Presence, params delayParams, serverTimeNow float64, pendingDate int32) int32 {
	var base int32

	switch {
	case dialogKind == DialogSecretChat:
		base = 0
	case !canBeDelayed:
		base = 0
	default:
		onlineCloudTimeoutSec := float64(params.OnlineCloudTimeoutMS) / 1000
		switch {
		case !presence.IsOnlineLocal && presence.IsOnlineRemote:
			base = params.CloudDelayMS
		case !presence.IsOnlineLocal && presence.WasOnlineRemote > maxFloat(presence.WasOnlineLocal, serverTimeNow-onlineCloudTimeoutSec):
			base = params.CloudDelayMS
		case presence.IsOnlineRemote:
			base = params.DefaultDelayMS
		default:
			base = 0
		}
	}

	passedMS := maxFloat(0, (serverTimeNow-float64(pendingDate)-1)*1000)
	result := float64(base) - passedMS
	if result < minNotificationDelayMS {
		result = minNotificationDelayMS
	}
	return int32(result)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
