package updates

import (
	"context"
	"fmt"
	"time"

	"telegram-userbot/internal/infra/config"
	"telegram-userbot/internal/infra/logger"

	"github.com/gotd/td/tg"
)

// WebAuthProvider выпускает одноразовые токены для входа в веб-интерфейс.
// Реализуется адаптером internal/adapters/web.Server.
type WebAuthProvider interface {
	GenerateAuthToken() string
}

// handleAuthCommand обрабатывает команду "auth", присланную администратором
// в личные сообщения боту: выпускает одноразовую ссылку для входа в веб-интерфейс.
func (h *Handlers) handleAuthCommand(ctx context.Context, entities tg.Entities, msg *tg.Message) {
	_ = entities

	if !config.Env().WebServerEnable {
		h.sendReply(ctx, msg, "❌ Web server is disabled. Enable it with WEB_SERVER_ENABLE=true in .env")
		return
	}
	if h.webAuth == nil {
		h.sendReply(ctx, msg, "❌ Web authentication service is not available")
		return
	}

	h.authMu.Lock()
	sinceLast := time.Since(h.lastAuthTime)
	if sinceLast < time.Minute {
		h.authMu.Unlock()
		wait := time.Minute - sinceLast
		h.sendReply(ctx, msg, fmt.Sprintf("⏳ Please wait %d seconds before requesting a new token.", int(wait.Seconds())))
		return
	}
	h.lastAuthTime = time.Now()
	h.authMu.Unlock()

	token := h.webAuth.GenerateAuthToken()
	authURL := fmt.Sprintf("http://%s/?token=%s", config.Env().WebServerAddress, token)

	message := fmt.Sprintf("🔐 Web Interface Authentication\n\n"+
		"Click the link below to access the web interface:\n"+
		"%s\n\n"+
		"⚠️ Note:\n"+
		"• This link is valid for one-time use\n"+
		"• Session expires after 1 hour of inactivity\n"+
		"• Requesting a new auth will invalidate the previous session",
		authURL)

	h.sendReply(ctx, msg, message)
	logger.Info("Auth link sent to admin")
}

// sendReply отправляет служебный ответ на входящее сообщение, используя peers
// manager для разрешения InputPeer по типу и ID отправителя.
func (h *Handlers) sendReply(ctx context.Context, msg *tg.Message, text string) {
	if h.api == nil {
		logger.Error("Cannot send reply: API client is nil")
		return
	}
	if h.peers == nil {
		logger.Error("Peers manager is not available")
		return
	}

	var peerKind string
	var peerID int64
	switch p := msg.PeerID.(type) {
	case *tg.PeerUser:
		peerKind, peerID = "user", p.UserID
	case *tg.PeerChat:
		peerKind, peerID = "chat", p.ChatID
	case *tg.PeerChannel:
		peerKind, peerID = "channel", p.ChannelID
	default:
		logger.Error("Unknown peer type")
		return
	}

	inputPeer, err := h.peers.InputPeerByKind(ctx, peerKind, peerID)
	if err != nil {
		logger.Errorf("Failed to resolve peer: %v", err)
		return
	}

	_, err = h.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     inputPeer,
		Message:  text,
		RandomID: time.Now().UnixNano(),
		ReplyTo:  &tg.InputReplyToMessage{ReplyToMsgID: msg.ID},
	})
	if err != nil {
		logger.Errorf("Failed to send reply: %v", err)
	}
}
