package handlers

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/artovix-tgbot-go/internal/i18n"
	"github.com/artovix-tgbot-go/internal/middleware"
	"github.com/artovix-tgbot-go/internal/models"
	"github.com/artovix-tgbot-go/internal/services/ai"
	"github.com/artovix-tgbot-go/internal/services/analytics"
	"github.com/artovix-tgbot-go/internal/services/cache"
	"github.com/artovix-tgbot-go/internal/services/storage"
	"github.com/artovix-tgbot-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// Version is reported by /stats and /status.
	Version = "2026.2.0"

	modelsInUse = "Llama 3.3, 3.2 Vision, Whisper"
)

// CommandHandler handles telegram commands and inline keyboard callbacks
type CommandHandler struct {
	*responder
	config         *config.Config
	aiService      ai.Service
	images         ImageGenerator
	imageProviders int
	storage        *storage.Manager
	analytics      *analytics.Recorder
	cache          cache.Service
	rateLimiter    middleware.RateLimiter
	started        time.Time
	now            func() time.Time
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(cfg *config.Config, svc Services) *CommandHandler {
	return &CommandHandler{
		responder:      newResponder(svc),
		config:         cfg,
		aiService:      svc.AI,
		images:         svc.Images,
		imageProviders: svc.ImageProviders,
		storage:        svc.Storage,
		analytics:      svc.Analytics,
		cache:          svc.Cache,
		rateLimiter:    svc.Limiter,
		started:        time.Now(),
		now:            time.Now,
	}
}

// HandleCommand processes telegram commands
func (h *CommandHandler) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	lang := languageOf(message.From)
	command := strings.ToLower(message.Command())
	args := commandArgs(message)

	h.metrics.RecordCommandExecuted(command)

	switch command {
	case "start", "artovix", "hello":
		return h.handleStart(chatID, lang)
	case "help":
		return h.sendID(chatID, lang, i18n.MsgHelp, nil)
	case "status":
		return h.handleStatus(ctx, chatID, lang)
	case "stats", "analytics", "metrics":
		return h.handleStats(ctx, chatID, lang)
	case "reset":
		h.storage.ClearHistory(ctx, userKey(chatID))
		return h.sendID(chatID, lang, i18n.MsgResetDone, nil)
	case "search", "find", "google":
		return h.handleSearch(ctx, message, args, lang)
	case "code", "program", "debug":
		return h.handleCode(ctx, message, args, lang)
	case "draw", "imagine", "generate":
		return h.handleImage(ctx, message, args, "", lang)
	case "flux":
		return h.handleImage(ctx, message, args, models.ImageModeFlux, lang)
	case "pollinations", "pollin":
		return h.handleImage(ctx, message, args, models.ImageModePollinations, lang)
	case "creative", "art":
		return h.handleImage(ctx, message, args, models.ImageModeCreative, lang)
	case "auto":
		return h.handleImage(ctx, message, args, models.ImageModeAuto, lang)
	case "model", "settings":
		return h.handleModelMenu(ctx, chatID, lang)
	default:
		return h.sendID(chatID, lang, i18n.MsgUnknownCommand, map[string]interface{}{
			"Command": markdown.Strip(command),
		})
	}
}

// HandleCallbackQuery processes inline keyboard callbacks
func (h *CommandHandler) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	lang := languageOf(callback.From)
	if callback.Message == nil || callback.Message.Chat == nil {
		h.answerCallback(callback.ID, "")
		return nil
	}
	chatID := callback.Message.Chat.ID

	if strings.HasPrefix(callback.Data, callbackSetModel) {
		return h.handleSetModel(ctx, callback, strings.TrimPrefix(callback.Data, callbackSetModel), lang)
	}

	var toast, primer string
	switch callback.Data {
	case callbackStartChat:
		toast, primer = i18n.MsgToastChat, i18n.MsgPrimerChat
	case callbackGenerateImage:
		toast, primer = i18n.MsgToastImage, i18n.MsgPrimerImage
	case callbackCodeHelp:
		toast, primer = i18n.MsgToastCode, i18n.MsgPrimerCode
	case callbackAskQuestion:
		toast, primer = i18n.MsgToastSearch, i18n.MsgPrimerSearch
	default:
		h.answerCallback(callback.ID, "")
		return nil
	}

	h.answerCallback(callback.ID, h.text(lang, toast, nil))
	return h.sendID(chatID, lang, primer, nil)
}

func (h *CommandHandler) handleStart(chatID int64, lang string) error {
	_, err := h.send(chatID, h.text(lang, i18n.MsgWelcome, nil), h.mainMenu(lang))
	return err
}

func (h *CommandHandler) handleStatus(ctx context.Context, chatID int64, lang string) error {
	aiStatus := h.text(lang, i18n.MsgStatusOffline, nil)
	if h.aiService.Enabled() {
		aiStatus = h.text(lang, i18n.MsgStatusOnline, nil)
	}

	return h.sendID(chatID, lang, i18n.MsgStatus, map[string]interface{}{
		"AI":       aiStatus,
		"Profiles": h.storage.CountProfiles(ctx),
		"Images":   h.text(lang, i18n.MsgStatusImages, map[string]interface{}{"Count": h.imageProviders}),
		"Time":     h.now().Format("2006-01-02 15:04:05"),
		"Version":  Version,
		"Uptime":   h.now().Sub(h.started).Round(time.Second).String(),
	})
}

func (h *CommandHandler) handleStats(ctx context.Context, chatID int64, lang string) error {
	metrics := h.analytics.CurrentMetrics(ctx)

	types := make([]string, 0, len(metrics.Breakdown))
	for t := range metrics.Breakdown {
		types = append(types, t)
	}
	sort.Strings(types)

	var breakdown strings.Builder
	for _, t := range types {
		breakdown.WriteString("• " + h.localizer.Title(lang, t) + ": " + h.localizer.Number(lang, metrics.Breakdown[t]) + "\n")
	}
	if breakdown.Len() == 0 {
		breakdown.WriteString(h.text(lang, i18n.MsgStatsNoRequests, nil))
	}

	return h.sendID(chatID, lang, i18n.MsgStats, map[string]interface{}{
		"RPM":       h.localizer.Number(lang, metrics.RequestsLastMinute),
		"TPM":       h.localizer.Number(lang, metrics.TokensLastMinute),
		"RPD":       h.localizer.Number(lang, metrics.RequestsToday),
		"Breakdown": strings.TrimRight(breakdown.String(), "\n"),
		"Version":   Version,
		"Models":    modelsInUse,
		"Profiles":  h.storage.CountProfiles(ctx),
		"Time":      h.now().Format("15:04:05"),
	})
}

func (h *CommandHandler) handleSearch(ctx context.Context, message *tgbotapi.Message, query, lang string) error {
	chatID := message.Chat.ID
	if query == "" {
		return h.sendID(chatID, lang, i18n.MsgSearchUsage, nil)
	}
	if !h.aiService.Enabled() {
		return h.sendBackendDisabled(chatID, lang, i18n.MsgFeatureSearch)
	}
	if !h.allow(message, lang) {
		return nil
	}

	h.typing(chatID, tgbotapi.ChatTyping)
	answer, err := h.cachedChat(ctx, cache.KindSearch, query, ai.ChatRequest{
		Prompt:  searchPrompt(query),
		Profile: ai.ProfileSearch,
	})
	h.analytics.Record(ctx, userKey(chatID), wordCount(query)*30, "search")
	if err != nil {
		h.logger.WithError(err).WithField("chat_id", chatID).Error("Search failed")
		return h.sendID(chatID, lang, i18n.MsgSearchFailed, map[string]interface{}{"Query": query})
	}

	return h.sendID(chatID, lang, i18n.MsgSearchResult, map[string]interface{}{
		"Query":  query,
		"Answer": answer,
	})
}

func (h *CommandHandler) handleCode(ctx context.Context, message *tgbotapi.Message, arg, lang string) error {
	chatID := message.Chat.ID
	if arg == "" {
		return h.sendID(chatID, lang, i18n.MsgCodeUsage, nil)
	}
	if !h.aiService.Enabled() {
		return h.sendBackendDisabled(chatID, lang, i18n.MsgFeatureCode)
	}
	if !h.allow(message, lang) {
		return nil
	}

	h.typing(chatID, tgbotapi.ChatTyping)
	answer, err := h.cachedChat(ctx, cache.KindCode, arg, ai.ChatRequest{
		Prompt:  codePrompt(arg),
		Profile: ai.ProfileCode,
	})
	h.analytics.Record(ctx, userKey(chatID), wordCount(arg), "code_analysis")
	if err != nil {
		h.logger.WithError(err).WithField("chat_id", chatID).Error("Code analysis failed")
		return h.sendID(chatID, lang, i18n.MsgCodeFailed, map[string]interface{}{"Question": arg})
	}

	return h.sendID(chatID, lang, i18n.MsgCodeResult, map[string]interface{}{"Analysis": answer})
}

// cachedChat answers from the cache when possible and stores fresh answers.
func (h *CommandHandler) cachedChat(ctx context.Context, kind, query string, req ai.ChatRequest) (string, error) {
	if answer, ok := h.cache.Get(ctx, kind, query); ok {
		return answer, nil
	}

	reply, err := h.aiService.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	answer := markdown.Repair(reply)
	h.cache.Set(ctx, kind, query, answer)
	return answer, nil
}

func (h *CommandHandler) handleModelMenu(ctx context.Context, chatID int64, lang string) error {
	current := h.currentMode(ctx, chatID)
	_, err := h.send(chatID, h.text(lang, i18n.MsgModelMenu, map[string]interface{}{
		"Mode": modeName(current),
	}), modelMenu(current))
	return err
}

func (h *CommandHandler) handleSetModel(ctx context.Context, callback *tgbotapi.CallbackQuery, value, lang string) error {
	mode, ok := models.ParseImageMode(value)
	if !ok {
		h.answerCallback(callback.ID, h.text(lang, i18n.MsgModelSetFailed, nil))
		return nil
	}

	chatID := callback.Message.Chat.ID
	h.storage.UpdateSetting(ctx, userKey(chatID), models.SettingImageModel, string(mode))
	h.logger.WithField("chat_id", chatID).WithField("mode", mode).Info("Default image model updated")

	text := h.text(lang, i18n.MsgModelSet, map[string]interface{}{"Mode": modeName(mode)})
	if err := h.edit(chatID, callback.Message.MessageID, text, modelMenu(mode)); err != nil {
		h.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to redraw model menu")
	}
	h.answerCallback(callback.ID, h.text(lang, i18n.MsgModelSetToast, map[string]interface{}{"Mode": modeName(mode)}))
	return nil
}

// currentMode is the user's stored image mode, auto when unset or unknown.
func (h *CommandHandler) currentMode(ctx context.Context, chatID int64) models.ImageMode {
	stored := h.storage.GetSetting(ctx, userKey(chatID), models.SettingImageModel, string(models.ImageModeAuto))
	if mode, ok := models.ParseImageMode(stored); ok {
		return mode
	}
	return models.ImageModeAuto
}

func (h *CommandHandler) allow(message *tgbotapi.Message, lang string) bool {
	return allowRequest(h.responder, h.rateLimiter, message, lang)
}
