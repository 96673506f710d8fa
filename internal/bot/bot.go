package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/xaenox/pairpost/internal/agentcfg"
	"github.com/xaenox/pairpost/internal/api"
	"github.com/xaenox/pairpost/internal/feed"
	"github.com/xaenox/pairpost/internal/inflight"
	"github.com/xaenox/pairpost/internal/onboarding"
	"github.com/xaenox/pairpost/internal/session"
	"github.com/xaenox/pairpost/internal/storage"
)

// Sender is the part of the Telegram API the handlers talk to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Bot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	client *api.Client
	store  storage.TokenStore
	files  *resty.Client
	logger *zap.Logger

	mu    sync.Mutex
	chats map[int64]*chat
}

func New(token string, debug bool, client *api.Client, store storage.TokenStore, logger *zap.Logger) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	botAPI.Debug = debug

	b := NewWithSender(botAPI, client, store, logger)
	b.api = botAPI
	return b, nil
}

// NewWithSender builds a bot that replies through sender and never polls.
func NewWithSender(sender Sender, client *api.Client, store storage.TokenStore, logger *zap.Logger) *Bot {
	return &Bot{
		sender: sender,
		client: client,
		store:  store,
		files:  resty.New(),
		logger: logger,
		chats:  make(map[int64]*chat),
	}
}

// Start polls for updates until ctx is done. Each update is handled in its
// own goroutine.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot has no telegram connection")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) Close() error {
	return b.files.Close()
}

// Health reports whether the bot can reach its token store.
func (b *Bot) Health(ctx context.Context) error {
	return b.store.Ping(ctx)
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	logger := b.logger.With(zap.String("trace_id", uuid.NewString()))

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, logger, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, logger, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, logger *zap.Logger, message *tgbotapi.Message) {
	c := b.chat(ctx, message.Chat.ID)
	logger = logger.With(zap.Int64("chat_id", message.Chat.ID))

	if message.IsCommand() {
		b.handleCommand(ctx, logger, c, message)
		return
	}

	if len(message.Photo) > 0 {
		b.handleProfilePicture(ctx, logger, c, message)
		return
	}

	text := message.Text
	if message.Caption != "" {
		text = message.Caption
	}

	if input := c.takeInput(); input.kind != inputNone {
		b.handleInput(ctx, logger, c, input, text)
		return
	}

	b.sendMessage(c.id, "Use /help to see what I can do.")
}

// escapeMarkdown escapes text for MarkdownV2.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) editMarkdown(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	var edit tgbotapi.EditMessageTextConfig
	if keyboard != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *keyboard)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := b.sender.Request(edit); err != nil {
		b.logger.Error("Failed to edit message",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

var userErrors = []error{
	feed.ErrEmptyContent,
	feed.ErrUnknownPost,
	feed.ErrUnknownComment,
	agentcfg.ErrNoAgent,
	agentcfg.ErrNotEditing,
	agentcfg.ErrNameRequired,
	agentcfg.ErrAutonomyRange,
	agentcfg.ErrUnknownStyle,
	agentcfg.ErrUnknownCadence,
	onboarding.ErrIncomplete,
	onboarding.ErrNotLast,
	onboarding.ErrBusy,
	onboarding.ErrInvalid,
}

// describe turns err into the text shown to the user.
func describe(err error) string {
	var apiErr *api.Error
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return "Please /login first."
	case errors.Is(err, inflight.ErrInFlight):
		return "Still working on that, hold on."
	case errors.As(err, &apiErr):
		return api.Message(err)
	}

	for _, known := range userErrors {
		if errors.Is(err, known) {
			msg := known.Error()
			return strings.ToUpper(msg[:1]) + msg[1:] + "."
		}
	}
	return api.GenericMessage
}

// fail reports err to the chat. A rejected token ends the session.
func (b *Bot) fail(ctx context.Context, logger *zap.Logger, c *chat, action string, err error) {
	if api.IsUnauthorized(err) && c.session.IsAuthenticated() {
		c.session.Invalidate(ctx)
		c.reset()
		b.sendErrorMessage(c.id, "Your session has expired. Please /login again.")
		return
	}

	text := describe(err)
	if text == api.GenericMessage {
		logger.Error("Failed to "+action, zap.Error(err))
	} else {
		logger.Info("Action refused", zap.String("action", action), zap.Error(err))
	}
	b.sendErrorMessage(c.id, text)
}
