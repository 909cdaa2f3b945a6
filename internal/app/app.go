// Package app — верхний уровень сборки и инициализации пользовательского Telegram‑клиента (userbot).
// Здесь связываются конфигурация, сетевой слой (gotd/telegram), диспетчер апдейтов, движок агрегации
// уведомлений и инфраструктурные сервисы. Отсюда стартует цикл обработки событий и обеспечивается
// корректный shutdown.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telegram-userbot/internal/adapters/botapi/notifier"
	"telegram-userbot/internal/adapters/telegram/core"
	"telegram-userbot/internal/adapters/telegram/notifier"
	"telegram-userbot/internal/adapters/telegram/notifysink"
	"telegram-userbot/internal/adapters/telegram/presence"
	"telegram-userbot/internal/domain/filters"
	"telegram-userbot/internal/domain/notifications"
	"telegram-userbot/internal/domain/notify"
	domainupdates "telegram-userbot/internal/domain/updates"
	"telegram-userbot/internal/infra/concurrency"
	"telegram-userbot/internal/infra/config"
	"telegram-userbot/internal/infra/logger"
	"telegram-userbot/internal/infra/storage"
	"telegram-userbot/internal/infra/telegram/connection"
	"telegram-userbot/internal/infra/telegram/peersmgr"
	"telegram-userbot/internal/infra/telegram/session"
	"telegram-userbot/internal/infra/timeutil"
	"telegram-userbot/internal/support/version"

	"github.com/go-faster/errors"
	"go.etcd.io/bbolt"
	"golang.org/x/time/rate"

	boltstor "github.com/gotd/contrib/bbolt"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	contribstorage "github.com/gotd/contrib/storage"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	tgupdates "github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
)

// lazyUpdateHandler — это обёртка, которая позволяет отложить установку
// реального обработчика апдейтов, разрывая цикл инициализации.
type lazyUpdateHandler struct {
	mu      sync.RWMutex
	handler telegram.UpdateHandler
}

func (h *lazyUpdateHandler) Handle(ctx context.Context, u tg.UpdatesClass) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.handler != nil {
		return h.handler.Handle(ctx, u)
	}
	return nil
}

func (h *lazyUpdateHandler) set(realHandler telegram.UpdateHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = realHandler
}

// botSessionOracle реализует notify.AuthSession поверх конфигурации окружения:
// движок агрегации уведомлений — no-op для бот-сессий (spec.md §7 "Disabled session"),
// а этот процесс всегда работает либо как пользовательская MTProto-сессия, либо
// доставляет через Bot API в зависимости от NOTIFIER. Признаком служит сам факт
// выбора бот-транспорта: IsBot() отражает "эта сессия не показывает нотификации",
// а не буквальный тип аккаунта.
type botSessionOracle struct {
	isBot bool
}

func (b botSessionOracle) IsBot() bool { return b.isBot }

// App агрегирует зависимости userbot и управляет их связью.
// Отвечает за:
//   - конфигурацию и телеграм‑клиента (авторизация, API),
//   - подсистему уведомлений и её хранилища, расписание и таймзону,
//   - движок агрегации/группировки уведомлений (notify.Manager),
//   - защиту от дублей и сглаживание частых правок,
//   - маршрутизацию апдейтов и регистрацию доменных обработчиков,
//   - запуск Runner, который оркестрирует жизненный цикл и graceful shutdown.
type App struct {
	mainCtx    context.Context           // Контекст жизненного цикла приложения.
	mainCancel context.CancelFunc        // Инициирует отмену mainCtx.
	client     *core.ClientCore          // Ядро MTProto-клиента: логин, Self(), RPC.
	filters    *filters.FilterEngine     // Движок фильтров: загрузка, хранение, матчи.
	notif      *notifications.Queue      // Асинхронная очередь уведомлений: транспорт client/bot, график, ретраи.
	notifyMgr  *notify.Manager           // Движок агрегации уведомлений (группировка/окно видимости).
	notifyKV   *storage.KVStore          // Durable-хранилище счётчиков движка агрегации.
	dupCache   *concurrency.Deduplicator // Фильтр повторов за заданное окно (идемпотентность на уровне событий).
	debouncer  *concurrency.Debouncer    // Сглаживание бурстов (частые правки одного сообщения и т.п.).
	handlers   *domainupdates.Handlers   // Доменные обработчики апдейтов и фоновые задачи.
	runner     *Runner                   // Оркестратор жизненного цикла и CLI.
	updMgr     *tgupdates.Manager        // Менеджер апдейтов gotd: поток событий и локальное состояние.
	peers      *peersmgr.Service         // Менеджер пиров + persist storage.
	waiter     *floodwait.Waiter         // Middleware для обработки FLOOD_WAIT.
}

// CleanPeriodHours — периодичность очистки внутренних фильтров/кэшей уведомлений (часы),
// чтобы не накапливать устаревшие записи во время длительной работы.
const (
	CleanPeriodHours = 24
	notifierClient   = "client"
	notifierBot      = "bot"

	notifyKVBucket = "notify_engine"
)

// NewApp создаёт пустой каркас приложения. Фактическая инициализация выполняется в Init().
func NewApp() *App {
	return &App{}
}

// Init выполняет всю тяжёлую сборку зависимостей: MTProto-клиент, менеджер пиров,
// хранилище состояния апдейтов, фильтры, очередь уведомлений, движок агрегации
// уведомлений и доменные обработчики. По завершении Runner готов к Run(), но
// сетевой цикл ещё не запущен.
func (a *App) Init(mainCtx context.Context, mainCancel context.CancelFunc) error {
	a.mainCtx = mainCtx
	a.mainCancel = mainCancel

	logger.Info("Userbot initializing...")

	dispatcher := tg.NewUpdateDispatcher()
	lazyHandler := &lazyUpdateHandler{}
	a.waiter = floodwait.NewWaiter()

	env := config.Env()

	// 1) Опции MTProto‑клиента: сессии, хуки апдейтов, поведение при dead‑соединении и паспорт устройства.
	options := telegram.Options{
		SessionStorage: &session.FileStorage{Path: env.SessionFile},
		UpdateHandler:  lazyHandler,
		Middlewares: []telegram.Middleware{
			a.waiter,
			ratelimit.New(
				rate.Limit(env.ThrottleRPS),
				env.ThrottleRPS*2, //nolint:mnd // burst = 2*rate
			),
		},
		// При сообщении от gotd о «мертвом» соединении отмечаем отключение для зависимых узлов.
		OnDead: func() {
			connection.MarkDisconnected()
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "MacBookPro18,1",
			SystemVersion: "macOS v15.6.1 build 24G90",
			AppVersion:    version.Version,
		},
	}

	// Для тестовых окружений используем DC тестового стенда Telegram.
	if env.TestDC {
		options.DCList = dcs.Test()
	}

	// Инициализация клиентского ядра gotd.
	a.client = core.New(options)

	peersSvc, peersMgrErr := peersmgr.New(a.client.API, env.PeersCacheFile)
	if peersMgrErr != nil {
		return fmt.Errorf("init peers manager: %w", peersMgrErr)
	}
	if err := peersSvc.LoadFromStorage(a.mainCtx); err != nil {
		return fmt.Errorf("load peers storage: %w", err)
	}
	a.peers = peersSvc

	// Инициализация хранилища состояния апдейтов.
	if err := storage.EnsureDir(env.StateFile); err != nil {
		return fmt.Errorf("ensure state file dir: %w", err)
	}
	stateStorageBoltdb, err := bbolt.Open(env.StateFile, 0o600, nil)
	if err != nil {
		return errors.Wrap(err, "create bolt storage")
	}
	stateStorage := boltstor.NewStateStorage(stateStorageBoltdb)

	// Инициализация менеджера апдейтов.
	updConfig := tgupdates.Config{
		Handler:      dispatcher,
		Storage:      stateStorage,
		AccessHasher: peersSvc.Mgr,
	}
	a.updMgr = tgupdates.New(updConfig)

	// Устанавливаем реальный обработчик в lazyHandler.
	realHandler := contribstorage.UpdateHook(peersSvc.Mgr.UpdateHook(a.updMgr), peersSvc.Store())
	lazyHandler.set(realHandler)

	// Инициализация filters.
	a.filters = filters.NewFilterEngine(env.FiltersFile, env.RecipientsFile)
	if filtersErr := a.filters.Load(); filtersErr != nil {
		return fmt.Errorf("load filters: %w", filtersErr)
	}

	// Подсистема уведомлений.
	queueStore, err := notifications.NewQueueStore(env.NotifyQueueFile, time.Second)
	if err != nil {
		return fmt.Errorf("init queue store: %w", err)
	}
	failedStore, err := notifications.NewFailedStore(env.NotifyFailedFile)
	if err != nil {
		return fmt.Errorf("init failed store: %w", err)
	}

	// Таймзона для расписания уведомлений берётся из конфигурации.
	loc, err := timeutil.ParseLocation(env.NotifyTimezone)
	if err != nil {
		return fmt.Errorf("load notify timezone: %w", err)
	}

	// Выбор транспорта уведомлений: client (userbot) или bot (Bot API).
	var sender notifications.PreparedSender
	isBotTransport := false
	switch env.Notifier {
	case notifierClient:
		sender = telegramnotifier.NewClientSender(a.client.API, env.ThrottleRPS, a.peers)
	case notifierBot:
		sender = botapionotifier.NewBotSender(env.BotToken, env.TestDC, env.ThrottleRPS)
		isBotTransport = true
	default:
		return errors.New(`invalid NOTIFIER option in .env (must be "client" or "bot")`)
	}

	// Сборка очереди уведомлений: транспорт, сторы, расписание, таймзона, часы.
	queue, err := notifications.NewQueue(notifications.QueueOptions{
		Sender:   sender,
		Store:    queueStore,
		Failed:   failedStore,
		Schedule: env.NotifySchedule,
		Location: loc,
		Clock:    time.Now,
		Peers:    a.peers,
	})
	if err != nil {
		return fmt.Errorf("init notifications queue: %w", err)
	}
	a.notif = queue

	// Движок агрегации/группировки уведомлений (notify.Manager): durable-хранилище
	// счётчиков на bbolt, предикат бот-сессии, оракул присутствия поверх status,
	// системные часы и sink, логирующий доставленные группы/одиночные апдейты.
	notifyKV, err := storage.OpenKVStore(env.NotifyGroupsStateFile, notifyKVBucket)
	if err != nil {
		return fmt.Errorf("init notify engine kv store: %w", err)
	}
	a.notifyKV = notifyKV
	a.notifyMgr = notify.NewManager(
		notifyKV,
		botSessionOracle{isBot: isBotTransport},
		presence.New(),
		notify.SystemClock(),
		notifysink.New(),
	)

	// Защита от дублей и бурстов правок.
	a.dupCache = concurrency.NewDeduplicator(env.DedupWindowSec)
	a.debouncer = concurrency.NewDebouncer(env.DebounceEditMS)

	// Регистрация доменных обработчиков, которым нужны API клиента и инфраструктура.
	h := domainupdates.NewHandlers(a.client.API, a.notif, a.peers, a.notifyMgr, a.dupCache, a.debouncer, a.mainCancel)
	a.handlers = h

	// Маршрутизация апдейтов на доменные обработчики.
	dispatcher.OnNewMessage(h.OnNewMessage)
	dispatcher.OnNewChannelMessage(h.OnNewChannelMessage)
	dispatcher.OnEditMessage(h.OnEditMessage)
	dispatcher.OnEditChannelMessage(h.OnEditChannelMessage)

	// Конструируем Runner, который запустит цикл и обеспечит корректный shutdown.
	a.runner = NewRunner(
		a.mainCtx,
		a.mainCancel,
		a.client,
		a.filters,
		a.notif,
		a.notifyMgr,
		a.dupCache,
		a.debouncer,
		a.handlers,
		a.peers,
	)

	return nil
}

// Run запускает основной цикл приложения (Runner.Run) и блокируется до
// завершения работы или ошибки. Init должен быть вызван и завершиться успешно
// до вызова Run.
func (a *App) Run() error {
	defer func() {
		if a.notifyKV != nil {
			if err := a.notifyKV.Close(); err != nil {
				logger.Errorf("failed to close notify engine kv store: %v", err)
			}
		}
	}()
	return a.runner.Run(a.waiter, a.updMgr)
}
