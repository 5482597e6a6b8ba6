package handlers

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/artovix-tgbot-go/internal/i18n"
	"github.com/artovix-tgbot-go/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Dispatcher routes each update to the handler for its kind
type Dispatcher struct {
	*responder
	commands *CommandHandler
	messages *MessageHandler
}

// NewDispatcher wires the command and message handlers over the same services
func NewDispatcher(cfg *config.Config, svc Services) *Dispatcher {
	return &Dispatcher{
		responder: newResponder(svc),
		commands:  NewCommandHandler(cfg, svc),
		messages:  NewMessageHandler(cfg, svc),
	}
}

// HandleUpdate processes one update. It never panics; a failing handler
// degrades to a short textual reply.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	chatID, userID, lang := origin(update)
	log := logger.WithChat(d.logger, chatID, userID)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).WithField("stack", string(debug.Stack())).Error("Handler panicked")
			d.metrics.RecordMessageProcessed("panic")
			if chatID != 0 {
				d.sendID(chatID, lang, i18n.MsgGenericError, nil)
			}
		}
	}()

	kind, err := d.route(ctx, update)
	if kind == "" {
		return
	}
	if err != nil {
		log.WithError(err).WithField("kind", kind).Error("Failed to handle update")
		d.metrics.RecordMessageProcessed("error")
		return
	}
	d.metrics.RecordMessageProcessed("success")
}

func (d *Dispatcher) route(ctx context.Context, update tgbotapi.Update) (string, error) {
	if update.CallbackQuery != nil {
		d.metrics.RecordMessageReceived("callback")
		return "callback", d.commands.HandleCallbackQuery(ctx, update.CallbackQuery)
	}

	message := update.Message
	if message == nil || message.Chat == nil {
		return "", nil
	}

	var kind string
	var handle func(context.Context, *tgbotapi.Message) error
	switch {
	case message.IsCommand():
		kind, handle = "command", d.commands.HandleCommand
	case message.Voice != nil:
		kind, handle = "voice", d.messages.HandleVoice
	case len(message.Photo) > 0:
		kind, handle = "photo", d.messages.HandlePhoto
	case message.Text != "":
		kind, handle = "text", d.messages.HandleMessage
	default:
		return "", nil
	}

	d.metrics.RecordMessageReceived(kind)
	return kind, handle(ctx, message)
}

func origin(update tgbotapi.Update) (chatID, userID int64, lang string) {
	switch {
	case update.CallbackQuery != nil:
		if msg := update.CallbackQuery.Message; msg != nil && msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		if from := update.CallbackQuery.From; from != nil {
			userID, lang = from.ID, from.LanguageCode
		}
	case update.Message != nil:
		if update.Message.Chat != nil {
			chatID = update.Message.Chat.ID
		}
		if from := update.Message.From; from != nil {
			userID, lang = from.ID, from.LanguageCode
		}
	}
	return chatID, userID, lang
}
