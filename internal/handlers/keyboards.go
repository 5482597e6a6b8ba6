package handlers

import (
	"strings"

	"github.com/artovix-tgbot-go/internal/i18n"
	"github.com/artovix-tgbot-go/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data values
const (
	callbackStartChat     = "start_chat"
	callbackGenerateImage = "generate_image"
	callbackCodeHelp      = "code_help"
	callbackAskQuestion   = "ask_question"
	callbackSetModel      = "set_model_"
)

var modeLabels = map[models.ImageMode]string{
	models.ImageModeAuto:         "🤖 Auto",
	models.ImageModeFlux:         "⚡ Flux",
	models.ImageModePollinations: "🎨 Pollinations",
	models.ImageModeCreative:     "🖌️ Creative",
}

func (r *responder) mainMenu(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.text(lang, i18n.MsgBtnChat, nil), callbackStartChat),
			tgbotapi.NewInlineKeyboardButtonData(r.text(lang, i18n.MsgBtnDraw, nil), callbackGenerateImage),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.text(lang, i18n.MsgBtnCode, nil), callbackCodeHelp),
			tgbotapi.NewInlineKeyboardButtonData(r.text(lang, i18n.MsgBtnSearch, nil), callbackAskQuestion),
		),
	)
}

// modelMenu lists the image modes two per row, marking the current one.
func modelMenu(current models.ImageMode) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, mode := range models.ImageModes {
		label := modeLabels[mode]
		if mode == current {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, callbackSetModel+string(mode)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func modeName(mode models.ImageMode) string {
	return strings.ToUpper(string(mode))
}
