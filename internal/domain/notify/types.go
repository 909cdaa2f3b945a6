// Package notify реализует движок агрегации и рассылки уведомлений: принимает
// сырые события по входящим сообщениям, объединяет их в группы по диалогу,
// откладывает и пакетирует по многоустройственному онлайн-статусу пользователя,
// удерживает ограниченное окно видимых групп и размер каждой группы, и
// выдаёт поток структурированных обновлений (updateNotificationGroup /
// updateNotification) во внешний приёмник (обычно — CLI/веб-слой поверх этого клиента).
//
// Основано на модели NotificationManager родного MTProto-клиента: единый
// актёр без внутренних блокировок, операции над группами обрабатываются
// последовательно через почтовый ящик; выделение идентификаторов (Allocate*)
// идёт в обход него (см. manager.go).
package notify

import "fmt"

// NotificationID — положительный 31-битный идентификатор уведомления.
// Нулевое значение — sentinel "невалидно/отсутствует".
type NotificationID int32

// Valid сообщает, является ли идентификатор ненулевым (валидным).
func (id NotificationID) Valid() bool { return id != 0 }

func (id NotificationID) String() string { return fmt.Sprintf("notif#%d", int32(id)) }

// NotificationGroupID — тот же формат, что и NotificationID, но отдельное
// пространство имён (группы и уведомления никогда не путаются местами).
type NotificationGroupID int32

// Valid сообщает, является ли идентификатор группы ненулевым (валидным).
func (id NotificationGroupID) Valid() bool { return id != 0 }

func (id NotificationGroupID) String() string { return fmt.Sprintf("group#%d", int32(id)) }

// DialogKind классифицирует диалог для целей политики задержки и рендеринга.
// SecretChat выделен отдельно: секретные чаты никогда не откладываются (см. delay.go).
type DialogKind int

const (
	DialogUser DialogKind = iota
	DialogChat
	DialogChannel
	DialogSecretChat
)

func (k DialogKind) String() string {
	switch k {
	case DialogUser:
		return "user"
	case DialogChat:
		return "chat"
	case DialogChannel:
		return "channel"
	case DialogSecretChat:
		return "secret"
	default:
		return "unknown"
	}
}

// DialogID — адрес диалога, к которому относится уведомление. ID хранит
// «сырой» Telegram-идентификатор пира (user/chat/channel id); Kind — собственный
// DialogKind этого пакета.
type DialogID struct {
	Kind DialogKind
	ID   int64
}

func (d DialogID) String() string { return fmt.Sprintf("%s:%d", d.Kind, d.ID) }

// RenderedContent — итог рендеринга NotificationType в предъявляемый пользователю
// вид. Пустое (nil) значение render() означает "не рендерится", см. NotificationType.
type RenderedContent struct {
	Title       string
	Body        string
	MessageLink string
}

// NotificationType — полиморфное содержимое уведомления. Единственный
// набор способностей, который нужен движку: можно ли откладывать доставку,
// как отрендерить для конкретного диалога, и как напечатать для логов.
// Владение type эксклюзивно: как только уведомление принято движком,
// никто другой его не мутирует (см. EditNotification для единственного
// узаконенного исключения).
type NotificationType interface {
	CanBeDelayed() bool
	Render(dialog DialogID) *RenderedContent
	String() string
}

// Notification — уже принятое в историю группы уведомление (видимое или
// вытесненное трактовкой keep_size, но больше не "pending").
type Notification struct {
	ID   NotificationID
	Type NotificationType
}

// PendingNotification — уведомление, ожидающее флаша. settings_dialog_id
// может отличаться от диалога группы (например, обсуждение в канале),
// и именно он определяет источник настроек тишины/звука для суб-батча.
type PendingNotification struct {
	ID               NotificationID
	Type             NotificationType
	Date             int32 // unix-секунды
	SettingsDialogID DialogID
	IsSilent         bool
}

// GroupKey — ключ упорядочивания группы в GroupStore. Полный порядок:
// по LastNotificationDate по убыванию, при равенстве — по GroupID по убыванию
// (так «самая свежая» группа сортируется первой). LastNotificationDate == 0
// означает «пусто/никогда не флашилась» и сортируется последней.
type GroupKey struct {
	GroupID              NotificationGroupID
	DialogID             DialogID
	LastNotificationDate int32
}

// emptyGroupKey — сентинел «пустой ключ», используемый как get_last_visible_key()
// когда видимых групп меньше max_group_count.
var emptyGroupKey = GroupKey{}

// Less реализует упомянутый в спецификации тотальный порядок ключей группы.
// Ключ с LastNotificationDate == 0 всегда сортируется последним, поэтому его
// сравнение с любым непустым ключом даёт false для Less (он "больше" всех).
func (k GroupKey) Less(other GroupKey) bool {
	if k.LastNotificationDate == 0 && other.LastNotificationDate == 0 {
		return k.GroupID > other.GroupID
	}
	if k.LastNotificationDate == 0 {
		return false
	}
	if other.LastNotificationDate == 0 {
		return true
	}
	if k.LastNotificationDate != other.LastNotificationDate {
		return k.LastNotificationDate > other.LastNotificationDate
	}
	return k.GroupID > other.GroupID
}

// Group — состояние одной группы уведомлений: принятая история, очередь
// pending-уведомлений и время очередного флаша. Инварианты I1-I6 см. SPEC_FULL.md §4.
type Group struct {
	Notifications       []Notification
	TotalCount          int32
	PendingNotifications []PendingNotification
	PendingFlushTime     float64 // абсолютное монотонное время; 0 == не запланирован
}

// extraGroupSize — EXTRA_GROUP_SIZE спецификации: порог батч-подрезки
// превышает целевой keep_size на эту величину, чтобы амортизировать сдвиг среза.
const extraGroupSize = 10
