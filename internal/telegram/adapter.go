package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/medseek/internal/conversation"
	"github.com/user/medseek/internal/gateway"
	"github.com/user/medseek/internal/render"
	"github.com/user/medseek/internal/state"
	"github.com/user/medseek/internal/types"
)

const maxTelegramMessage = 4096

// Source identifies inbound events from Telegram.
const Source = "telegram"

// Bot is the part of the Telegram API the adapter uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	api     *tgbotapi.BotAPI
	bot     Bot
	gateway *gateway.Gateway
}

// New creates a Telegram adapter.
func New(token string, gw *gateway.Gateway) (*Adapter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	slog.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Adapter{api: api, bot: api, gateway: gw}, nil
}

// Start begins long-polling for Telegram updates and blocks until ctx is
// cancelled.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" || update.Message.From == nil {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.api.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	// Handle commands
	if msg.IsCommand() {
		a.handleCommand(msg)
		return
	}

	chatID := msg.Chat.ID
	event := &types.InboundEvent{
		Source:     Source,
		SessionKey: buildSessionKey(msg.From.ID, msg.Chat.ID),
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		Text:       msg.Text,
	}

	// Sessions are resolved by HandleInbound; the critical flag before this
	// turn decides whether the banner follows the reply.
	var wasCritical bool
	if sess, err := a.gateway.Sessions().GetByKey(event.SessionKey); err == nil {
		wasCritical = sess.State.CriticalDetected()
	}

	_, err := a.gateway.HandleInbound(ctx, event, gateway.WithOnComplete(func(snap conversation.Snapshot, result types.AgentResult) {
		a.sendReply(chatID, result)
		if snap.CriticalDetected && !wasCritical {
			a.sendText(chatID, render.CriticalBanner)
		}
	}))
	switch {
	case errors.Is(err, conversation.ErrTurnInProgress):
		a.sendText(chatID, render.BusyNotice)
		return
	case errors.Is(err, conversation.ErrEmptyMessage):
		return
	case err != nil:
		slog.Error("handle inbound failed", "session_key", string(event.SessionKey), "error", err)
		a.sendText(chatID, "Sorry, I encountered an error processing your message.")
		return
	}

	if _, err := a.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("send chat action failed", "chat_id", chatID, "error", err)
	}
}

func (a *Adapter) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := buildSessionKey(msg.From.ID, msg.Chat.ID)

	switch msg.Command() {
	case "start":
		a.sendText(chatID, "Hello! I'm MedSeek, your AI medical receptionist. Tell me how you're feeling to get started.")

	case "new":
		err := a.gateway.EndSession(key)
		if err != nil && !errors.Is(err, state.ErrSessionNotFound) {
			slog.Error("end session failed", "session_key", string(key), "error", err)
			a.sendText(chatID, "Could not reset the conversation.")
			return
		}
		a.sendText(chatID, "Starting a new conversation.")

	case "status":
		sess, err := a.gateway.Sessions().GetByKey(key)
		if err != nil {
			a.sendText(chatID, "No active conversation. Send a message to start one.")
			return
		}
		snap := sess.State.Snapshot()
		alert := "none"
		if snap.CriticalDetected {
			alert = "critical"
		}
		a.sendText(chatID, fmt.Sprintf("Session: %s\nMessages: %d\nAlert: %s", sess.ID, len(snap.Messages), alert))

	default:
		a.sendText(chatID, "Unknown command. Available: /start, /new, /status")
	}
}

// SendTo delivers text to the chat addressed by a Telegram session key.
func (a *Adapter) SendTo(key types.SessionKey, text string) error {
	chatID, err := chatIDFromKey(key)
	if err != nil {
		return err
	}
	a.sendText(chatID, text)
	return nil
}

func (a *Adapter) sendReply(chatID int64, result types.AgentResult) {
	if result.IsError {
		a.sendText(chatID, render.ErrorBanner(result.Reply))
		return
	}
	a.sendText(chatID, render.Markdown(result.Reply))
}

func (a *Adapter) sendText(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end >= len(text) {
			end = len(text)
		} else {
			// Do not cut a multi-byte character in half.
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

// chatIDFromKey extracts the chat ID from a "telegram:<user>:<chat>" key.
func chatIDFromKey(key types.SessionKey) (int64, error) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 3 || parts[0] != Source {
		return 0, fmt.Errorf("not a telegram session key: %s", key)
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id in session key %s: %w", key, err)
	}
	return id, nil
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey(Source,
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}
