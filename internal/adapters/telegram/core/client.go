// Package core содержит оболочки вокруг gotd для авторизации и управления сессией пользовательского Telegram‑клиента.
// Этот файл описывает клиентское ядро (ClientCore): создание клиента, интерактивную авторизацию,
// доступ к RPC и корректное завершение сессии с очисткой локального состояния.
package core

import (
	"context"
	"fmt"
	"os"

	"telegram-userbot/internal/infra/config"
	"telegram-userbot/internal/infra/logger"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// ClientCore — тонкая обёртка над gotd, объединяющая сетевой клиент и RPC‑клиента.
// Login/Logout используют config.Env() для номера телефона и пути к файлу сессии.
type ClientCore struct {
	Client *telegram.Client // Сетевой клиент gotd: держит MTProto‑соединение, прокачивает апдейты, управляет сессией
	API    *tg.Client       // Тонкий RPC‑клиент для вызовов Telegram (Auth, Messages, Users и т.д.)
}

// New создаёт ClientCore, инициализируя gotd‑клиент на основе текущего Env.
// options.UpdateHandler должен быть выставлен вызывающей стороной заранее.
func New(options telegram.Options) *ClientCore {
	client := telegram.NewClient(config.Env().APIID, config.Env().APIHash, options)
	return &ClientCore{
		Client: client,
		API:    client.API(),
	}
}

// Login выполняет интерактивную авторизацию:
//  1. проверяет текущий статус сессии (Auth.Status),
//  2. если не авторизованы — запускает auth.Flow с TerminalAuthenticator,
//  3. при необходимости обрабатывает ввод кода/2FA и приём условий использования.
func (c *ClientCore) Login(ctx context.Context) error {
	status, err := c.Client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status error: %w", err)
	}

	if status.Authorized {
		logger.Debug("Already authorized, session restored")
		return nil
	}

	flow := auth.NewFlow(
		TerminalAuthenticator{PhoneNumber: config.Env().PhoneNumber},
		auth.SendCodeOptions{},
	)

	return c.Client.Auth().IfNecessary(ctx, flow)
}

// Logout отзывает сессию на сервере и удаляет локальный файл сессии.
func (c *ClientCore) Logout(ctx context.Context) error {
	if _, err := c.API.AuthLogOut(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	if err := os.Remove(config.Env().SessionFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	logger.Info("Logged out successfully")
	return nil
}
