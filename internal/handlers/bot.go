package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artovix-tgbot-go/internal/i18n"
	"github.com/artovix-tgbot-go/internal/middleware"
	"github.com/artovix-tgbot-go/internal/models"
	"github.com/artovix-tgbot-go/internal/services/ai"
	"github.com/artovix-tgbot-go/internal/services/analytics"
	"github.com/artovix-tgbot-go/internal/services/cache"
	"github.com/artovix-tgbot-go/internal/services/imagegen"
	"github.com/artovix-tgbot-go/internal/services/storage"
	"github.com/artovix-tgbot-go/pkg/markdown"
	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// BotAPI is the part of *tgbotapi.BotAPI the handlers use
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Downloader fetches the bytes of an uploaded file
type Downloader interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// ImageGenerator is satisfied by *imagegen.Chain
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, mode models.ImageMode) (*imagegen.Result, error)
}

// Services bundles everything the handlers talk to
type Services struct {
	Bot       BotAPI
	Files     Downloader
	AI        ai.Service
	Images    ImageGenerator
	Storage   *storage.Manager
	Analytics *analytics.Recorder
	Cache     cache.Service
	Limiter   middleware.RateLimiter
	Localizer *i18n.Localizer
	Metrics   *middleware.Metrics
	Logger    logrus.FieldLogger

	// ImageProviders is the number of registered image backends, shown by /status.
	ImageProviders int
}

// telegramFiles downloads through the Bot API file endpoint
type telegramFiles struct {
	bot    BotAPI
	client *resty.Client
}

// NewTelegramFiles returns a Downloader for files referenced by Telegram file IDs
func NewTelegramFiles(bot BotAPI, timeout time.Duration) Downloader {
	return &telegramFiles{
		bot:    bot,
		client: resty.New().SetTimeout(timeout),
	}
}

func (f *telegramFiles) Download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := f.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", fileID, err)
	}

	res, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("download file %s: status %d", fileID, res.StatusCode())
	}
	return res.Body(), nil
}

// responder owns outbound delivery. Text goes out as legacy Markdown after
// repair; if Telegram rejects the entities it is re-sent as HTML and then as
// plain text.
type responder struct {
	bot       BotAPI
	localizer *i18n.Localizer
	metrics   *middleware.Metrics
	logger    logrus.FieldLogger
}

func newResponder(svc Services) *responder {
	return &responder{
		bot:       svc.Bot,
		localizer: svc.Localizer,
		metrics:   svc.Metrics,
		logger:    svc.Logger,
	}
}

func (r *responder) text(lang, id string, data map[string]interface{}) string {
	return r.localizer.Get(lang, id, data)
}

func (r *responder) send(chatID int64, text string, markup interface{}) (tgbotapi.Message, error) {
	text = markdown.Repair(text)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = markup
	sent, err := r.bot.Send(msg)
	if err == nil {
		return sent, nil
	}
	log := r.logger.WithField("chat_id", chatID)
	log.WithError(err).Warn("Markdown send rejected, retrying as HTML")

	msg.Text = markdown.ToTelegramHTML(text)
	msg.ParseMode = tgbotapi.ModeHTML
	if msg.Text != "" {
		if sent, err = r.bot.Send(msg); err == nil {
			return sent, nil
		}
		log.WithError(err).Warn("HTML send rejected, retrying as plain text")
	}

	msg.Text = markdown.Strip(text)
	msg.ParseMode = ""
	sent, err = r.bot.Send(msg)
	if err != nil {
		log.WithError(err).Error("Failed to send message")
	}
	return sent, err
}

func (r *responder) sendID(chatID int64, lang, id string, data map[string]interface{}) error {
	_, err := r.send(chatID, r.text(lang, id, data), nil)
	return err
}

func (r *responder) sendBackendDisabled(chatID int64, lang, feature string) error {
	return r.sendID(chatID, lang, i18n.MsgBackendDisabled, map[string]interface{}{
		"Feature": r.text(lang, feature, nil),
	})
}

func (r *responder) edit(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	text = markdown.Repair(text)

	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := r.bot.Send(edit); err == nil {
		return nil
	}

	edit.Text = markdown.Strip(text)
	edit.ParseMode = ""
	_, err := r.bot.Send(edit)
	return err
}

func (r *responder) answerCallback(callbackID, text string) {
	if _, err := r.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		r.logger.WithError(err).Debug("Failed to answer callback")
	}
}

func (r *responder) typing(chatID int64, action string) {
	r.bot.Request(tgbotapi.NewChatAction(chatID, action))
}

func (r *responder) delete(chatID int64, messageID int) {
	if _, err := r.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		r.logger.WithError(err).WithField("chat_id", chatID).Debug("Failed to delete placeholder")
	}
}

// allowRequest consults the per-user limiter and tells the user when they are over it.
func allowRequest(r *responder, limiter middleware.RateLimiter, message *tgbotapi.Message, lang string) bool {
	if limiter == nil || limiter.Allow(senderID(message)) {
		return true
	}
	r.sendID(message.Chat.ID, lang, i18n.MsgRateLimited, nil)
	return false
}

// userKey is the storage key for a chat: the chat id as a decimal string
func userKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func languageOf(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	return user.LanguageCode
}

func senderID(msg *tgbotapi.Message) int64 {
	if msg.From != nil {
		return msg.From.ID
	}
	return msg.Chat.ID
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// commandArgs normalizes whitespace in the text after the command
func commandArgs(msg *tgbotapi.Message) string {
	return strings.Join(strings.Fields(msg.CommandArguments()), " ")
}
