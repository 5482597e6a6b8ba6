package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/artovix-tgbot-go/internal/i18n"
	"github.com/artovix-tgbot-go/internal/services/ai"
	"github.com/artovix-tgbot-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownRejectionFallsBackToHTMLThenPlain(t *testing.T) {
	env := newTestEnv(t)
	env.bot.reject = func(c tgbotapi.Chattable) error {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ParseMode != "" {
			return errors.New("Bad Request: can't parse entities")
		}
		return nil
	}

	env.handle(textUpdate("/help"))

	var modes []string
	for _, c := range env.bot.attempts {
		modes = append(modes, c.(tgbotapi.MessageConfig).ParseMode)
	}
	assert.Equal(t, []string{tgbotapi.ModeMarkdown, tgbotapi.ModeHTML, ""}, modes)

	require.Len(t, env.bot.delivered, 1)
	assert.Equal(t, markdown.Strip(env.expect(i18n.MsgHelp, nil)), env.bot.lastText())
}

func TestHTMLFallbackDelivers(t *testing.T) {
	env := newTestEnv(t)
	env.bot.reject = func(c tgbotapi.Chattable) error {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ParseMode == tgbotapi.ModeMarkdown {
			return errors.New("Bad Request: can't parse entities")
		}
		return nil
	}
	env.ai.reply = "**bold** answer"

	env.handle(textUpdate("hi"))

	require.Len(t, env.bot.delivered, 1)
	msg := env.bot.delivered[0].(tgbotapi.MessageConfig)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "<b>bold</b>")
}

func TestPanicIsRecovered(t *testing.T) {
	env := newTestEnv(t)
	env.ai.chatFn = func(ai.ChatRequest) (string, error) {
		panic("boom")
	}

	assert.NotPanics(t, func() { env.handle(textUpdate("hello")) })
	assert.Equal(t, env.expect(i18n.MsgGenericError, nil), env.bot.lastText())
}

func TestUpdatesWithoutContentAreIgnored(t *testing.T) {
	env := newTestEnv(t)

	env.handle(tgbotapi.Update{})
	env.handle(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: testChatID}}})

	assert.Empty(t, env.bot.attempts)
	assert.Empty(t, env.bot.requests)
}

func TestCallbackWithoutMessageIsAnswered(t *testing.T) {
	env := newTestEnv(t)
	update := callbackUpdate("start_chat")
	update.CallbackQuery.Message = nil

	env.handle(update)

	assert.Len(t, env.bot.callbacks(), 1)
	assert.Empty(t, env.bot.delivered)
}

func TestTelegramFilesDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voice-1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ogg-bytes"))
	}))
	defer srv.Close()

	files := NewTelegramFiles(&fakeBot{fileBase: srv.URL}, 5*time.Second)

	data, err := files.Download(context.Background(), "voice-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("ogg-bytes"), data)

	_, err = files.Download(context.Background(), "missing")
	assert.Error(t, err)

	_, err = NewTelegramFiles(&fakeBot{}, time.Second).Download(context.Background(), "voice-1")
	assert.Error(t, err)
}

func TestLargestPhoto(t *testing.T) {
	got := largestPhoto([]tgbotapi.PhotoSize{
		{FileID: "a", Width: 100, Height: 800},
		{FileID: "b", Width: 400, Height: 400},
	})
	assert.Equal(t, "b", got.FileID)
}
