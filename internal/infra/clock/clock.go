// Пакет clock — единая точка доступа ко времени приложения.
package clock

import (
	"telegram-userbot/internal/infra/config"
	"time"
)

// Now возвращает текущее время в глобальной таймзоне приложения.
func Now() time.Time {
	return time.Now().In(config.AppLocation)
}

// MonotonicNow возвращает монотонные секунды, пригодные для планирования
// таймеров (аналог Time::now_cached() исходного клиента). У этого процесса
// нет отдельного монотонного источника — time.Now() уже несёт монотонное
// показание под капотом, поэтому секунды с начала эпохи используются и как
// монотонная, и как календарная шкала. Для тестов движок notify зависит от
// интерфейса notify.Clock, а не от этой функции напрямую.
func MonotonicNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// ServerTimeCached возвращает предполагаемое серверное время в секундах с
// эпохи. Клиент не оценивает отдельно смещение часов сервера (в отличие от
// TDLib, которое кеширует server_time на основе ответов MTProto), поэтому
// используется локальное время процесса.
func ServerTimeCached() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
