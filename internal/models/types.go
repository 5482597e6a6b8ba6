package models

import (
	"strings"
	"time"
)

const (
	// MaxHistory is the number of turns kept per user after every write (10 exchanges).
	MaxHistory = 20
	// ContextTurns is the number of most recent turns replayed to the model.
	ContextTurns = 4

	// SettingImageModel is the only recognized profile setting.
	SettingImageModel = "image_model"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserProfile is the persisted per-user record of history and preferences
type UserProfile struct {
	History  []Message         `json:"history"`
	Settings map[string]string `json:"settings"`
}

// NewUserProfile returns an empty profile
func NewUserProfile() UserProfile {
	return UserProfile{
		History:  []Message{},
		Settings: map[string]string{},
	}
}

// AppendExchange records a user turn and the assistant reply, keeping only the
// most recent MaxHistory entries.
func (p *UserProfile) AppendExchange(userText, reply string) {
	p.History = append(p.History,
		Message{Role: "user", Content: userText},
		Message{Role: "assistant", Content: reply},
	)
	if len(p.History) > MaxHistory {
		p.History = append([]Message(nil), p.History[len(p.History)-MaxHistory:]...)
	}
}

// RecentHistory returns at most n of the latest turns.
func RecentHistory(history []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// ImageMode selects which image providers are tried
type ImageMode string

const (
	ImageModeAuto         ImageMode = "auto"
	ImageModeFlux         ImageMode = "flux"
	ImageModePollinations ImageMode = "pollinations"
	ImageModeCreative     ImageMode = "creative"
)

// ImageModes lists the modes in menu order.
var ImageModes = []ImageMode{ImageModeAuto, ImageModeFlux, ImageModePollinations, ImageModeCreative}

// ParseImageMode reports whether s names a known mode.
func ParseImageMode(s string) (ImageMode, bool) {
	mode := ImageMode(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range ImageModes {
		if m == mode {
			return m, true
		}
	}
	return "", false
}

// MetricEvent is one immutable record of a completed request
type MetricEvent struct {
	ID          int64
	UserID      string
	Timestamp   time.Time
	TokenCount  int
	RequestType string
}

// UsageMetrics are the rolling aggregates shown by /stats
type UsageMetrics struct {
	RequestsLastMinute int
	TokensLastMinute   int
	RequestsToday      int
	Breakdown          map[string]int
}

// EmptyUsageMetrics is the zero result with a non-nil breakdown.
func EmptyUsageMetrics() UsageMetrics {
	return UsageMetrics{Breakdown: map[string]int{}}
}
