// Package channel connects the bot to Telegram: it polls for updates,
// turns messages into inbound events, and implements the outbound
// transport the delivery pipeline writes to.
package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gembot/internal/bus"
	"gembot/internal/domain"
	"gembot/internal/generator"
)

const (
	pollTimeoutSeconds = 30
	downloadTimeout    = 60 * time.Second

	greeting = "Hello! Send me a message or a photo and I'll answer with Gemini.\n\n" +
		"Commands:\n" +
		"/model — choose the model\n" +
		"/clear — forget our conversation\n" +
		"/agreement — terms of use"
)

// Telegram polls the Bot API and publishes inbound events. It also
// implements domain.Transport for outbound sends.
type Telegram struct {
	token       string
	allowFrom   []int64 // allowed user IDs (empty = allow all)
	agreement   string  // HTML terms shown by /agreement (empty = not configured)
	bot         *tgbotapi.BotAPI
	bus         *bus.InMemoryBus
	history     domain.HistoryStore
	attachments domain.AttachmentStore
	client      *http.Client
	logger      *slog.Logger
}

type TelegramConfig struct {
	Token       string
	AllowFrom   []string // user IDs as strings
	Agreement   string
	Bus         *bus.InMemoryBus
	History     domain.HistoryStore
	Attachments domain.AttachmentStore
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:       cfg.Token,
		allowFrom:   allowed,
		agreement:   cfg.Agreement,
		bus:         cfg.Bus,
		history:     cfg.History,
		attachments: cfg.Attachments,
		client:      &http.Client{Timeout: downloadTimeout},
		logger:      cfg.Logger,
	}
}

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", msg.From.UserName,
		)
		t.reply(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	if msg.IsCommand() {
		t.handleCommand(ctx, chatID, msg)
		return
	}

	if len(msg.Photo) > 0 {
		t.handlePhoto(ctx, chatID, msg)
		return
	}

	if modelID, ok := generator.DisplayNames[strings.TrimSpace(msg.Text)]; ok {
		t.handleModelChoice(ctx, chatID, msg.From.ID, modelID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text),
	)

	t.bus.Publish(domain.Event{
		Kind:       domain.EventText,
		Text:       text,
		ChatID:     strconv.FormatInt(chatID, 10),
		SenderID:   strconv.FormatInt(userID, 10),
		SenderName: msg.From.UserName,
		ReceivedAt: time.Unix(int64(msg.Date), 0),
	})
}

// handlePhoto downloads the largest rendition, saves it locally, and
// publishes a media event. Photos sent together share a media group ID,
// which routes them into one album burst.
func (t *Telegram) handlePhoto(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	best := msg.Photo[len(msg.Photo)-1]

	data, err := t.FetchAttachment(ctx, best.FileID)
	if err != nil {
		t.logger.Error("photo download failed", "file_id", best.FileID, "err", err)
		t.reply(chatID, "Sorry, I couldn't download that photo. Please try again.")
		return
	}

	ref, err := t.attachments.Save(best.FileID, data)
	if err != nil {
		t.logger.Error("photo save failed", "file_id", best.FileID, "err", err)
		t.reply(chatID, "Sorry, I couldn't store that photo. Please try again.")
		return
	}

	t.logger.Info("telegram photo received",
		"user_id", msg.From.ID,
		"album", msg.MediaGroupID,
		"bytes", len(data),
	)

	t.bus.Publish(domain.Event{
		Kind:       domain.EventMedia,
		Text:       strings.TrimSpace(msg.Caption),
		Attachment: ref,
		AlbumID:    msg.MediaGroupID,
		ChatID:     strconv.FormatInt(chatID, 10),
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: msg.From.UserName,
		ReceivedAt: time.Unix(int64(msg.Date), 0),
	})
}

func (t *Telegram) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)

	switch msg.Command() {
	case "start":
		out := tgbotapi.NewMessage(chatID, greeting)
		out.ReplyMarkup = modelKeyboard()
		if _, err := t.bot.Send(out); err != nil {
			t.logger.Error("greeting send failed", "err", err)
		}
	case "clear":
		if err := t.history.Clear(ctx, userID); err != nil {
			t.logger.Error("history clear failed", "user", userID, "err", err)
			t.reply(chatID, "Sorry, I couldn't clear the conversation. Please try again.")
			return
		}
		if err := t.attachments.ClearAll(); err != nil {
			t.logger.Warn("attachment clear failed", "err", err)
		}
		t.reply(chatID, "Conversation cleared. Let's start fresh!")
	case "model":
		out := tgbotapi.NewMessage(chatID, "Choose a model:")
		out.ReplyMarkup = modelKeyboard()
		if _, err := t.bot.Send(out); err != nil {
			t.logger.Error("model keyboard send failed", "err", err)
		}
	case "agreement":
		if t.agreement == "" {
			t.reply(chatID, "No user agreement is configured.")
			return
		}
		if _, err := t.bot.Send(t.agreementMessage(chatID)); err != nil {
			t.logger.Error("agreement send failed", "err", err)
		}
	default:
		t.reply(chatID, "Unknown command. Send /start for help.")
	}
}

func (t *Telegram) handleModelChoice(ctx context.Context, chatID, userID int64, modelID string) {
	if err := t.history.SetModel(ctx, strconv.FormatInt(userID, 10), modelID); err != nil {
		t.logger.Error("model preference update failed", "user", userID, "err", err)
		t.reply(chatID, "Sorry, I couldn't switch the model. Please try again.")
		return
	}
	t.logger.Info("model switched", "user", userID, "model", modelID)
	t.reply(chatID, fmt.Sprintf("Switched to %s.", modelID))
}

// agreementMessage builds the /agreement reply. The configured text may
// carry HTML markup, so it is sent with HTML parse mode.
func (t *Telegram) agreementMessage(chatID int64) tgbotapi.MessageConfig {
	out := tgbotapi.NewMessage(chatID, t.agreement)
	out.ParseMode = tgbotapi.ModeHTML
	return out
}

func modelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(generator.DisplayNames))
	for name := range generator.DisplayNames {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(name)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// reply is for short service messages outside the delivery pipeline.
func (t *Telegram) reply(chatID int64, text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.logger.Error("service reply failed", "err", err)
	}
}

// --- domain.Transport ---

// SendText sends one payload. Markup-parse rejections are reported as
// permanent so the caller can fall back to plain text; everything else is
// transient and left to the caller's retry policy.
func (t *Telegram) SendText(_ context.Context, chatID, text string, mode domain.MarkupMode) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return &domain.TransportError{Rejected: true, Err: fmt.Errorf("invalid chat ID %q: %w", chatID, err)}
	}

	msg := tgbotapi.NewMessage(id, text)
	if mode == domain.MarkupHTML {
		msg.ParseMode = tgbotapi.ModeHTML
	}

	if _, err := t.bot.Send(msg); err != nil {
		return classifySendError(err)
	}
	return nil
}

func (t *Telegram) SendTyping(_ context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}
	if _, err := t.bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("chat action: %w", err)
	}
	return nil
}

// FetchAttachment resolves a Telegram file ID to its bytes.
func (t *Telegram) FetchAttachment(ctx context.Context, ref string) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", ref, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file %s: HTTP %d", ref, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// classifySendError distinguishes a markup rejection from transient
// failures. The Bot API reports entity-parsing problems as HTTP 400 with a
// "can't parse entities" description.
func classifySendError(err error) error {
	if strings.Contains(err.Error(), "can't parse entities") {
		return &domain.TransportError{Rejected: true, Err: err}
	}
	return &domain.TransportError{Rejected: false, Err: err}
}
