package handlers

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/artovix-tgbot-go/internal/i18n"
	"github.com/artovix-tgbot-go/internal/models"
	"github.com/artovix-tgbot-go/internal/services/ai"
	"github.com/artovix-tgbot-go/internal/services/analytics"
	"github.com/artovix-tgbot-go/internal/services/cache"
	"github.com/artovix-tgbot-go/internal/services/imagegen"
	"github.com/artovix-tgbot-go/internal/services/storage"
	"github.com/artovix-tgbot-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const (
	testChatID int64 = 42
	testUserID int64 = 7
	testPrompt       = "You are a test persona."
)

type fakeBot struct {
	mu        sync.Mutex
	attempts  []tgbotapi.Chattable
	delivered []tgbotapi.Chattable
	requests  []tgbotapi.Chattable
	nextID    int
	fileBase  string
	reject    func(tgbotapi.Chattable) error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts = append(b.attempts, c)
	if b.reject != nil {
		if err := b.reject(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	b.delivered = append(b.delivered, c)
	b.nextID++
	return tgbotapi.Message{MessageID: 100 + b.nextID}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	if b.fileBase == "" {
		return "", errors.New("no file server")
	}
	return b.fileBase + "/" + fileID, nil
}

// texts returns the text of every delivered message or edit, in order.
func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for _, c := range b.delivered {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (b *fakeBot) lastText() string {
	texts := b.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (b *fakeBot) callbacks() []tgbotapi.CallbackConfig {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []tgbotapi.CallbackConfig
	for _, c := range b.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb)
		}
	}
	return out
}

func (b *fakeBot) deletions() []tgbotapi.DeleteMessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []tgbotapi.DeleteMessageConfig
	for _, c := range b.requests {
		if d, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

type fakeAI struct {
	enabled bool
	reply   string
	chatErr error
	chatFn  func(ai.ChatRequest) (string, error)

	requests []ai.ChatRequest

	tempDir         string
	transcript      string
	transcribeErr   error
	transcribedName string
	fileExisted     bool
	audio           []byte

	analysis     string
	visionErr    error
	visionPrompt string
	visionImage  []byte
}

func (f *fakeAI) Enabled() bool { return f.enabled }

func (f *fakeAI) Chat(ctx context.Context, req ai.ChatRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.chatFn != nil {
		return f.chatFn(req)
	}
	return f.reply, f.chatErr
}

func (f *fakeAI) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	f.transcribedName = filename
	_, err := os.Stat(filepath.Join(f.tempDir, filename))
	f.fileExisted = err == nil
	f.audio, _ = io.ReadAll(audio)
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	return f.transcript, nil
}

func (f *fakeAI) Vision(ctx context.Context, image []byte, prompt string) (string, error) {
	f.visionImage = image
	f.visionPrompt = prompt
	return f.analysis, f.visionErr
}

type fakeImages struct {
	result  *imagegen.Result
	err     error
	modes   []models.ImageMode
	prompts []string
}

func (f *fakeImages) Generate(ctx context.Context, prompt string, mode models.ImageMode) (*imagegen.Result, error) {
	f.modes = append(f.modes, mode)
	f.prompts = append(f.prompts, prompt)
	return f.result, f.err
}

type fakeFiles struct {
	files     map[string][]byte
	requested []string
}

func (f *fakeFiles) Download(ctx context.Context, fileID string) ([]byte, error) {
	f.requested = append(f.requested, fileID)
	data, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

type fakeLimiter struct {
	deny bool
}

func (l *fakeLimiter) Allow(int64) bool { return !l.deny }
func (l *fakeLimiter) Reset(int64)      {}

type testEnv struct {
	ctx        context.Context
	cfg        *config.Config
	bot        *fakeBot
	ai         *fakeAI
	images     *fakeImages
	files      *fakeFiles
	limiter    *fakeLimiter
	storage    *storage.Manager
	analytics  *analytics.Recorder
	localizer  *i18n.Localizer
	dispatcher *Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log, _ := test.NewNullLogger()

	cfg := &config.Config{
		Context: config.ContextConfig{SystemPrompt: testPrompt},
		Media:   config.MediaConfig{TempDir: filepath.Join(t.TempDir(), "media")},
		I18n:    config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en"}},
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	require.NoError(t, err)

	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)

	env := &testEnv{
		ctx:       context.Background(),
		cfg:       cfg,
		bot:       &fakeBot{},
		ai:        &fakeAI{enabled: true, tempDir: cfg.Media.TempDir},
		images:    &fakeImages{},
		files:     &fakeFiles{files: map[string][]byte{}},
		limiter:   &fakeLimiter{},
		storage:   storage.NewManager(storage.NewMemoryBackend(), log, nil),
		analytics: analytics.NewRecorder(analytics.NewMemoryBackend(), log, analytics.WithClock(func() time.Time { return noon })),
		localizer: localizer,
	}

	env.dispatcher = NewDispatcher(cfg, Services{
		Bot:            env.bot,
		Files:          env.files,
		AI:             env.ai,
		Images:         env.images,
		ImageProviders: 2,
		Storage:        env.storage,
		Analytics:      env.analytics,
		Cache:          cache.NewCache(&config.CacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 10}, log, nil),
		Limiter:        env.limiter,
		Localizer:      localizer,
		Logger:         log,
	})
	return env
}

// expect is the text a user sees for a localized message.
func (e *testEnv) expect(id string, data map[string]interface{}) string {
	return markdown.Repair(e.localizer.Get("en", id, data))
}

func (e *testEnv) handle(update tgbotapi.Update) {
	e.dispatcher.HandleUpdate(e.ctx, update)
}

func (e *testEnv) metrics() models.UsageMetrics {
	return e.analytics.CurrentMetrics(e.ctx)
}

func newMessage(text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: testChatID, Type: "private"},
		From:      &tgbotapi.User{ID: testUserID, LanguageCode: "en"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		command := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	return msg
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: newMessage(text)}
}

func callbackUpdate(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: testUserID, LanguageCode: "en"},
		Message: &tgbotapi.Message{MessageID: 55, Chat: &tgbotapi.Chat{ID: testChatID}},
		Data:    data,
	}}
}
