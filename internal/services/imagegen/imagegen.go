// Package imagegen turns prompts into images by trying hosted generators in order.
package imagegen

import (
	"context"
	"errors"
	"strings"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/artovix-tgbot-go/internal/models"
	"github.com/artovix-tgbot-go/internal/services/ai"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoResult means no provider produced an image and no fallback applies.
	ErrNoResult = errors.New("no usable image result")
	// ErrSoftFailure wraps a single provider attempt that should not stop the chain.
	ErrSoftFailure = errors.New("provider attempt failed")
)

// Provider is one image backend
type Provider interface {
	Name() string
	Mode() models.ImageMode
	TryGenerate(ctx context.Context, prompt string) ([]byte, error)
}

// Describer writes the text fallback. ai.Service satisfies it.
type Describer interface {
	Enabled() bool
	Chat(ctx context.Context, req ai.ChatRequest) (string, error)
}

// Description is the textual stand-in returned when auto mode runs out of providers.
type Description struct {
	Prompt string
	Text   string
	// Disabled is set when the inference backend has no credential.
	Disabled bool
}

// Result holds either image bytes or a description
type Result struct {
	Image       []byte
	Provider    string
	Description *Description
}

// IsImage reports whether the result carries image bytes
func (r *Result) IsImage() bool {
	return r != nil && len(r.Image) > 0
}

// AttemptObserver is told about every provider attempt.
type AttemptObserver func(provider, status string)

// Chain tries providers in registration order.
type Chain struct {
	providers []Provider
	describer Describer
	logger    logrus.FieldLogger
	observe   AttemptObserver
}

func NewChain(providers []Provider, describer Describer, logger logrus.FieldLogger, observe AttemptObserver) *Chain {
	if observe == nil {
		observe = func(string, string) {}
	}
	return &Chain{
		providers: providers,
		describer: describer,
		logger:    logger.WithField("component", "imagegen"),
		observe:   observe,
	}
}

// DefaultProviders registers Flux (only with a credential), Pollinations and Creative.
func DefaultProviders(cfg *config.ImagesConfig) []Provider {
	var providers []Provider
	if strings.TrimSpace(cfg.Flux.APIKey) != "" {
		providers = append(providers, NewFlux(cfg.Flux))
	}
	providers = append(providers,
		NewPollinations(cfg.Pollinations),
		NewCreative(cfg.Pollinations, nil),
	)
	return providers
}

// Generate runs the chain. A specific mode only tries its own provider and
// returns ErrNoResult on failure; auto mode falls back to a description.
func (c *Chain) Generate(ctx context.Context, prompt string, mode models.ImageMode) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrNoResult
	}
	if _, ok := models.ParseImageMode(string(mode)); !ok {
		mode = models.ImageModeAuto
	}

	log := c.logger.WithField("mode", mode)
	log.WithField("prompt", truncate(prompt, 50)).Info("Generating image")

	for _, p := range c.providers {
		if mode != models.ImageModeAuto && p.Mode() != mode {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := p.TryGenerate(ctx, prompt)
		if err != nil {
			c.observe(p.Name(), "failure")
			log.WithError(err).WithField("provider", p.Name()).Warn("Image provider failed")
			continue
		}
		c.observe(p.Name(), "success")
		log.WithField("provider", p.Name()).Info("Image generated")
		return &Result{Image: img, Provider: p.Name()}, nil
	}

	if mode != models.ImageModeAuto {
		return nil, ErrNoResult
	}
	return c.describe(ctx, prompt, log)
}

func (c *Chain) describe(ctx context.Context, prompt string, log logrus.FieldLogger) (*Result, error) {
	if c.describer == nil || !c.describer.Enabled() {
		log.Warn("Inference backend unavailable, returning disabled description")
		return &Result{Description: &Description{Prompt: prompt, Disabled: true}}, nil
	}

	text, err := c.describer.Chat(ctx, ai.ChatRequest{
		Prompt:  "Create a detailed visual description for: " + prompt,
		Profile: ai.ProfileImageCaption,
	})
	if err != nil {
		log.WithError(err).Error("Text fallback failed")
		return nil, ErrNoResult
	}
	return &Result{Description: &Description{Prompt: prompt, Text: text}}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
