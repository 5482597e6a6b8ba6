package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/artovix-tgbot-go/internal/config"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

var errEmptyResponse = errors.New("empty response")

// Groq talks to an OpenAI-compatible endpoint (Groq by default)
type Groq struct {
	client   *openai.Client
	cfg      config.AIConfig
	logger   logrus.FieldLogger
	observer Observer
}

// NewGroq builds the gateway. Without an API key no client is created and
// every call fails fast with ErrBackendUnavailable. observer may be nil.
func NewGroq(cfg config.AIConfig, logger logrus.FieldLogger, observer Observer) *Groq {
	g := &Groq{
		cfg:      cfg,
		logger:   logger.WithField("component", "ai"),
		observer: observer,
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		g.logger.Warn("No inference API key configured, AI features disabled")
		return g
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	g.client = openai.NewClientWithConfig(clientCfg)
	return g
}

func (g *Groq) Enabled() bool {
	return g.client != nil
}

func (g *Groq) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if !g.Enabled() {
		return "", ErrBackendUnavailable
	}

	msgs := BuildMessages(req)
	chatMsgs := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	return g.complete(ctx, "chat_"+req.Profile.Name, openai.ChatCompletionRequest{
		Model:       g.cfg.ChatModel,
		Messages:    chatMsgs,
		Temperature: req.Profile.Temperature,
		MaxTokens:   req.Profile.MaxTokens,
	})
}

func (g *Groq) Vision(ctx context.Context, image []byte, prompt string) (string, error) {
	if !g.Enabled() {
		return "", ErrBackendUnavailable
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultVisionPrompt
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	return g.complete(ctx, "vision", openai.ChatCompletionRequest{
		Model: g.cfg.VisionModel,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		}},
		MaxTokens: VisionMaxTokens,
	})
}

func (g *Groq) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if !g.Enabled() {
		return "", ErrBackendUnavailable
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    g.cfg.TranscriptionModel,
		FilePath: filename,
		Reader:   audio,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		g.observe("transcribe", "error", start)
		g.logger.WithError(err).WithField("op", "transcribe").Error("Transcription failed")
		return "", &CallError{Op: "transcribe", Err: err}
	}
	g.observe("transcribe", "success", start)

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrUnintelligible
	}
	return text, nil
}

func (g *Groq) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	log := g.logger.WithFields(logrus.Fields{"op": op, "model": req.Model})
	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		g.observe(op, "error", start)
		log.WithError(err).Error("Completion request failed")
		return "", &CallError{Op: op, Err: err}
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		g.observe(op, "empty", start)
		log.Warn("Completion returned no content")
		return "", &CallError{Op: op, Err: errEmptyResponse}
	}

	g.observe(op, "success", start)
	log.WithField("duration", time.Since(start)).Debug("Completion finished")
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *Groq) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.Timeout)
}

func (g *Groq) observe(op, status string, start time.Time) {
	if g.observer != nil {
		g.observer.RecordAIRequest(op, status, time.Since(start))
	}
}
