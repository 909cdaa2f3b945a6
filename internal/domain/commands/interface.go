// Package commands предоставляет общий интерфейс для выполнения команд управления
// юзерботом. Команды используются как CLI-адаптером, так и веб-интерфейсом.
package commands

import (
	"context"
	"time"
)

// Executor - интерфейс для выполнения команд управления юзерботом.
type Executor interface {
	// Status возвращает текущий статус очереди уведомлений
	Status(ctx context.Context) (*StatusResult, error)

	// List возвращает список кешированных диалогов
	List(ctx context.Context) (*ListResult, error)

	// Flush инициирует немедленный слив регулярной очереди уведомлений
	Flush(ctx context.Context) error

	// RefreshDialogs обновляет кеш диалогов из Telegram API
	RefreshDialogs(ctx context.Context) error

	// ReloadFilters перезагружает фильтры и получателей из конфигурационных файлов
	ReloadFilters(ctx context.Context) error

	// Test отправляет тестовое сообщение администратору для проверки связности
	Test(ctx context.Context) (*TestResult, error)

	// Whoami возвращает информацию о текущем аккаунте
	Whoami(ctx context.Context) (*WhoamiResult, error)

	// Version возвращает информацию о версии приложения
	Version(ctx context.Context) (*VersionResult, error)

	// NotifyGroups возвращает отладочный снимок окна видимости движка
	// агрегации уведомлений
	NotifyGroups(ctx context.Context) (*NotifyGroupsResult, error)

	// ListRecipients возвращает справочник получателей, загруженный из recipients.json
	ListRecipients(ctx context.Context) (*RecipientsResult, error)
}

// StatusResult - результат команды Status
type StatusResult struct {
	UrgentQueueSize    int            // размер срочной очереди
	RegularQueueSize   int            // размер регулярной очереди
	LastRegularDrainAt time.Time      // время последнего слива регулярной очереди
	LastFlushAt        time.Time      // время последней персистентности
	NextScheduleAt     time.Time      // время следующего планового тика
	Location           *time.Location // таймзона для отображения
}

// ListResult - результат команды List
type ListResult struct {
	Dialogs []Dialog // список диалогов
}

// Dialog - информация о диалоге
type Dialog struct {
	ID       int64  // ID диалога
	Kind     string // тип диалога (user, chat, channel, folder)
	Title    string // название/имя
	Username string // username (если есть)
	Type     string // подтип (для каналов: Channel, Supergroup, Channel-like)
}

// TestResult - результат команды Test
type TestResult struct {
	Success bool      // успешна ли отправка
	Message string    // сообщение о результате
	SentAt  time.Time // время отправки
}

// WhoamiResult - результат команды Whoami
type WhoamiResult struct {
	ID       int64  // ID пользователя
	FullName string // полное имя
	Username string // username
}

// VersionResult - результат команды Version
type VersionResult struct {
	Name    string // название приложения
	Version string // версия
}

// NotifyGroupInfo - одна видимая группа уведомлений в окне движка агрегации
type NotifyGroupInfo struct {
	GroupID    int32  // идентификатор группы
	DialogID   string // диалог, к которому привязана группа
	Shown      int    // сколько уведомлений реально отображено (<= group_size_max)
	TotalCount int32  // общее число уведомлений, когда-либо накопленных в группе
}

// NotifyGroupsResult - результат команды NotifyGroups
type NotifyGroupsResult struct {
	Groups []NotifyGroupInfo // текущее окно видимости, от самой свежей группы к самой старой
}

// RecipientInfo - один получатель из справочника recipients.json
type RecipientInfo struct {
	ID       string   // идентификатор получателя (ключ в recipients.json)
	Type     string   // user|chat|channel
	PeerID   int64    // Telegram peer_id
	Note     string   // заметка оператора
	TZ       string   // персональная таймзона (если задана)
	Schedule []string // персональное расписание HH:MM (если задано)
}

// RecipientsResult - результат команды ListRecipients
type RecipientsResult struct {
	Recipients []RecipientInfo
}
