package handlers

import (
	"context"
	"errors"

	"github.com/artovix-tgbot-go/internal/i18n"
	"github.com/artovix-tgbot-go/internal/models"
	"github.com/artovix-tgbot-go/internal/services/imagegen"
	"github.com/artovix-tgbot-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// placeholderPromptLen caps how much of the prompt the progress message echoes.
const placeholderPromptLen = 50

// handleImage runs one generation. An empty mode means the user's stored default.
func (h *CommandHandler) handleImage(ctx context.Context, message *tgbotapi.Message, prompt string, mode models.ImageMode, lang string) error {
	chatID := message.Chat.ID

	if prompt == "" {
		shown, command := mode, string(mode)
		if mode == "" {
			shown, command = h.currentMode(ctx, chatID), "draw"
		}
		text := h.text(lang, i18n.MsgImageUsage, map[string]interface{}{
			"Mode":    modeName(shown),
			"Command": command,
		})
		var markup interface{}
		if mode == "" {
			markup = modelMenu(shown)
		}
		_, err := h.send(chatID, text, markup)
		return err
	}

	if mode == "" {
		mode = h.currentMode(ctx, chatID)
	}
	if !h.allow(message, lang) {
		return nil
	}

	log := h.logger.WithField("chat_id", chatID).WithField("mode", mode)

	h.typing(chatID, tgbotapi.ChatUploadPhoto)
	placeholder, perr := h.send(chatID, h.text(lang, i18n.MsgImagePlaceholder, map[string]interface{}{
		"Mode":   modeName(mode),
		"Prompt": markdown.Strip(markdown.Truncate(prompt, placeholderPromptLen)),
	}), nil)
	removed := perr != nil
	removePlaceholder := func() {
		if !removed {
			removed = true
			h.delete(chatID, placeholder.MessageID)
		}
	}
	defer removePlaceholder()

	result, err := h.images.Generate(ctx, prompt, mode)
	removePlaceholder()
	h.analytics.Record(ctx, userKey(chatID), wordCount(prompt), "image_gen_"+string(mode))

	switch {
	case errors.Is(err, imagegen.ErrNoResult) || (err == nil && result == nil):
		return h.sendID(chatID, lang, i18n.MsgImageFailed, nil)
	case err != nil:
		log.WithError(err).Error("Image generation failed")
		return h.sendID(chatID, lang, i18n.MsgImageFailed, nil)
	case result.IsImage():
		log.WithField("provider", result.Provider).Info("Image generated")
		return h.sendImage(chatID, result.Image, prompt, mode, lang)
	case result.Description != nil:
		return h.sendConcept(chatID, result.Description, mode, lang)
	default:
		return h.sendID(chatID, lang, i18n.MsgImageFailed, nil)
	}
}

func (h *CommandHandler) sendImage(chatID int64, image []byte, prompt string, mode models.ImageMode, lang string) error {
	caption := markdown.Repair(h.text(lang, i18n.MsgImageCaption, map[string]interface{}{
		"Mode":   modeName(mode),
		"Prompt": markdown.Strip(prompt),
		"Time":   h.now().Format("15:04"),
	}))
	caption = markdown.Truncate(caption, 1024)

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "artovix.png", Bytes: image})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.bot.Send(photo); err == nil {
		return nil
	}

	photo.Caption = markdown.Strip(caption)
	photo.ParseMode = ""
	if _, err := h.bot.Send(photo); err != nil {
		h.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to send image")
		return h.sendID(chatID, lang, i18n.MsgImageSendFailed, nil)
	}
	return nil
}

func (h *CommandHandler) sendConcept(chatID int64, desc *imagegen.Description, mode models.ImageMode, lang string) error {
	emojis := "🎨✨"
	text := desc.Text
	suggestion := h.text(lang, i18n.MsgImageConceptSuggestion, nil)
	if desc.Disabled {
		emojis = "⚠️"
		text = h.text(lang, i18n.MsgImageDisabledDescription, nil)
		suggestion = h.text(lang, i18n.MsgImageDisabledSuggestion, nil)
	}

	return h.sendID(chatID, lang, i18n.MsgImageConcept, map[string]interface{}{
		"Prompt":      desc.Prompt,
		"Mode":        modeName(mode),
		"Emojis":      emojis,
		"Description": text,
		"Suggestion":  suggestion,
	})
}
