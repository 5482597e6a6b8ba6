package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendExchangeCapsHistory(t *testing.T) {
	p := NewUserProfile()
	for i := 0; i < 25; i++ {
		p.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		assert.LessOrEqual(t, len(p.History), MaxHistory)
	}

	assert.Len(t, p.History, MaxHistory)
	assert.Equal(t, Message{Role: "user", Content: "q15"}, p.History[0])
	assert.Equal(t, Message{Role: "assistant", Content: "a24"}, p.History[MaxHistory-1])
}

func TestRecentHistory(t *testing.T) {
	history := []Message{{"user", "1"}, {"assistant", "2"}, {"user", "3"}, {"assistant", "4"}, {"user", "5"}, {"assistant", "6"}}

	got := RecentHistory(history, ContextTurns)
	assert.Equal(t, history[2:], got)

	assert.Equal(t, history[:2], RecentHistory(history[:2], ContextTurns))
	assert.Nil(t, RecentHistory(history, 0))
}

func TestParseImageMode(t *testing.T) {
	tests := []struct {
		in   string
		want ImageMode
		ok   bool
	}{
		{"auto", ImageModeAuto, true},
		{" FLUX ", ImageModeFlux, true},
		{"pollinations", ImageModePollinations, true},
		{"creative", ImageModeCreative, true},
		{"dalle", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseImageMode(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
