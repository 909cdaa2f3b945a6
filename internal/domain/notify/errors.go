package notify

import "github.com/go-faster/errors"

// ErrInvalidID — сентинел для пользовательских ошибок RemoveNotification /
// RemoveNotificationGroup, когда переданный идентификатор невалиден
// (нулевой). Неизвестные движку идентификаторы ошибкой не считаются.
// Проверяется через errors.Is.
var ErrInvalidID = errors.New("notify: invalid notification id")

// ContractViolation — тип паники для нарушений контракта (невалидные id,
// nil-тип, неизвестная группа на пути флаша), которые спецификация
// описывает как fatal assertion, недостижимую при корректном использовании
// API. В однопоточной модели актёра это соответствует CHECK() исходного
// клиента: паника всплывает наружу mailbox-цикла, логируется и
// перевыбрасывается — процесс не должен молча проглатывать сломанный инвариант.
type ContractViolation struct {
	Op      string
	Message string
}

func (e *ContractViolation) Error() string {
	return "notify: contract violation in " + e.Op + ": " + e.Message
}

// assertContract паникует с ContractViolation, если condition ложно.
func assertContract(condition bool, op, message string) {
	if !condition {
		panic(&ContractViolation{Op: op, Message: message})
	}
}
