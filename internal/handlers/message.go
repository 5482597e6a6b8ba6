package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/artovix-tgbot-go/internal/i18n"
	"github.com/artovix-tgbot-go/internal/middleware"
	"github.com/artovix-tgbot-go/internal/services/ai"
	"github.com/artovix-tgbot-go/internal/services/analytics"
	"github.com/artovix-tgbot-go/internal/services/storage"
	"github.com/artovix-tgbot-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// visionTokens is the flat token count recorded for one image analysis.
const visionTokens = 500

// MessageHandler handles free text, voice notes and photos
type MessageHandler struct {
	*responder
	config      *config.Config
	aiService   ai.Service
	files       Downloader
	storage     *storage.Manager
	analytics   *analytics.Recorder
	rateLimiter middleware.RateLimiter
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(cfg *config.Config, svc Services) *MessageHandler {
	return &MessageHandler{
		responder:   newResponder(svc),
		config:      cfg,
		aiService:   svc.AI,
		files:       svc.Files,
		storage:     svc.Storage,
		analytics:   svc.Analytics,
		rateLimiter: svc.Limiter,
	}
}

// HandleMessage answers free text with the conversation model
func (h *MessageHandler) HandleMessage(ctx context.Context, message *tgbotapi.Message) error {
	text := strings.TrimSpace(message.Text)
	if text == "" || strings.HasPrefix(text, "/") {
		return nil
	}

	lang := languageOf(message.From)
	if !h.aiService.Enabled() {
		return h.sendBackendDisabled(message.Chat.ID, lang, i18n.MsgFeatureChat)
	}
	if !allowRequest(h.responder, h.rateLimiter, message, lang) {
		return nil
	}
	return h.respond(ctx, message.Chat.ID, text, lang)
}

// respond runs one conversational exchange and records it in the user's history.
func (h *MessageHandler) respond(ctx context.Context, chatID int64, text, lang string) error {
	key := userKey(chatID)
	h.typing(chatID, tgbotapi.ChatTyping)

	profile := h.storage.GetProfile(ctx, key)
	reply, err := h.aiService.Chat(ctx, ai.ChatRequest{
		System:  h.config.Context.SystemPrompt,
		History: profile.History,
		Prompt:  text,
		Profile: ai.ProfileChat,
	})
	if err != nil {
		h.logger.WithError(err).WithField("chat_id", chatID).Error("Chat request failed")
		return h.sendID(chatID, lang, i18n.MsgChatFailed, nil)
	}

	reply = markdown.Repair(reply)
	profile.AppendExchange(text, reply)
	h.storage.SaveProfile(ctx, key, profile)

	_, err = h.send(chatID, reply, nil)
	h.analytics.Record(ctx, key, wordCount(text)+wordCount(reply), "chat")
	return err
}

// HandleVoice transcribes a voice note and answers the transcript as free text
func (h *MessageHandler) HandleVoice(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	lang := languageOf(message.From)
	if !h.aiService.Enabled() {
		return h.sendBackendDisabled(chatID, lang, i18n.MsgFeatureVoice)
	}
	if !allowRequest(h.responder, h.rateLimiter, message, lang) {
		return nil
	}

	h.typing(chatID, tgbotapi.ChatTyping)
	transcript, err := h.transcribe(ctx, chatID, message.Voice.FileID)
	switch {
	case errors.Is(err, ai.ErrUnintelligible):
		return h.sendID(chatID, lang, i18n.MsgVoiceUnclear, nil)
	case err != nil:
		h.logger.WithError(err).WithField("chat_id", chatID).Error("Voice processing failed")
		return h.sendID(chatID, lang, i18n.MsgVoiceFailed, nil)
	}

	if err := h.sendID(chatID, lang, i18n.MsgVoiceTranscribed, map[string]interface{}{"Text": transcript}); err != nil {
		return err
	}
	return h.respond(ctx, chatID, transcript, lang)
}

// transcribe stages the voice note in the media temp dir; the file is gone when it returns.
func (h *MessageHandler) transcribe(ctx context.Context, chatID int64, fileID string) (string, error) {
	audio, err := h.files.Download(ctx, fileID)
	if err != nil {
		return "", err
	}

	dir := h.config.Media.TempDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("voice_%d_%s.ogg", chatID, uuid.NewString()))
	if err := os.WriteFile(path, audio, 0o600); err != nil {
		return "", fmt.Errorf("stage voice file: %w", err)
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open voice file: %w", err)
	}
	defer f.Close()

	transcript, err := h.aiService.Transcribe(ctx, filepath.Base(path), f)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(transcript), nil
}

// HandlePhoto describes the largest variant of a photo with the vision model
func (h *MessageHandler) HandlePhoto(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	lang := languageOf(message.From)
	if !h.aiService.Enabled() {
		return h.sendBackendDisabled(chatID, lang, i18n.MsgFeatureVision)
	}
	if !allowRequest(h.responder, h.rateLimiter, message, lang) {
		return nil
	}

	h.typing(chatID, tgbotapi.ChatTyping)
	log := h.logger.WithField("chat_id", chatID)

	photo := largestPhoto(message.Photo)
	image, err := h.files.Download(ctx, photo.FileID)
	if err != nil {
		log.WithError(err).Error("Photo download failed")
		return h.sendID(chatID, lang, i18n.MsgVisionFailed, nil)
	}

	prompt := strings.TrimSpace(message.Caption)
	if prompt == "" {
		prompt = ai.DefaultVisionPrompt
	}

	analysis, err := h.aiService.Vision(ctx, image, prompt)
	if err != nil {
		log.WithError(err).Error("Vision analysis failed")
		return h.sendID(chatID, lang, i18n.MsgVisionFailed, nil)
	}

	h.analytics.Record(ctx, userKey(chatID), visionTokens, "vision_analysis")
	return h.sendID(chatID, lang, i18n.MsgVisionResult, map[string]interface{}{
		"Analysis": markdown.Repair(analysis),
	})
}

// largestPhoto picks the variant with the most pixels; photos must be non-empty.
func largestPhoto(photos []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := photos[0]
	for _, p := range photos[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}
