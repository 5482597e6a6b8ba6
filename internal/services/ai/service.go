package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/artovix-tgbot-go/internal/models"
)

var (
	// ErrBackendUnavailable means no inference credential is configured.
	ErrBackendUnavailable = errors.New("ai backend not configured")
	// ErrUnintelligible is returned for an empty transcript.
	ErrUnintelligible = errors.New("audio could not be understood")
	// ErrCallFailed matches every *CallError.
	ErrCallFailed = errors.New("external call failed")
)

// CallError wraps a failed external call
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return target == ErrCallFailed }

// CallProfile fixes sampling for one kind of call
type CallProfile struct {
	Name        string
	Temperature float32
	MaxTokens   int
}

var (
	ProfileChat         = CallProfile{Name: "chat", Temperature: 0.7, MaxTokens: 400}
	ProfileSearch       = CallProfile{Name: "search", Temperature: 0.7, MaxTokens: 500}
	ProfileCode         = CallProfile{Name: "code", Temperature: 0.3, MaxTokens: 600}
	ProfileImageCaption = CallProfile{Name: "image_caption", Temperature: 0.8, MaxTokens: 200}
)

const (
	VisionMaxTokens     = 500
	DefaultVisionPrompt = "Describe this image in detail and tell me what you see."
)

// ChatRequest is one chat completion: persona, prior turns and the new user turn.
type ChatRequest struct {
	System  string
	History []models.Message
	Prompt  string
	Profile CallProfile
}

// BuildMessages lays out the request with only the latest ContextTurns history entries.
func BuildMessages(req ChatRequest) []models.Message {
	recent := models.RecentHistory(req.History, models.ContextTurns)
	msgs := make([]models.Message, 0, len(recent)+2)
	if req.System != "" {
		msgs = append(msgs, models.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, recent...)
	msgs = append(msgs, models.Message{Role: "user", Content: req.Prompt})
	return msgs
}

// Service is the inference gateway
type Service interface {
	Enabled() bool
	Chat(ctx context.Context, req ChatRequest) (string, error)
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
	Vision(ctx context.Context, image []byte, prompt string) (string, error)
}

// Observer receives one sample per completed call
type Observer interface {
	RecordAIRequest(op, status string, duration time.Duration)
}
