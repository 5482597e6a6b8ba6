package imagegen

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/artovix-tgbot-go/internal/models"
	"github.com/go-resty/resty/v2"
)

// Flux calls the hosted FLUX.1-schnell inference endpoint
type Flux struct {
	client      *resty.Client
	apiKey      string
	url         string
	fallbackURL string
}

func NewFlux(cfg config.FluxConfig) *Flux {
	return &Flux{
		client:      resty.New().SetTimeout(cfg.Timeout),
		apiKey:      cfg.APIKey,
		url:         cfg.URL,
		fallbackURL: cfg.FallbackURL,
	}
}

func (f *Flux) Name() string           { return "flux" }
func (f *Flux) Mode() models.ImageMode { return models.ImageModeFlux }

// TryGenerate posts the prompt. 410 Gone means the model moved; the
// router URL is tried exactly once in that case.
func (f *Flux) TryGenerate(ctx context.Context, prompt string) ([]byte, error) {
	res, err := f.post(ctx, f.url, prompt)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() == http.StatusGone && f.fallbackURL != "" {
		res, err = f.post(ctx, f.fallbackURL, prompt)
		if err != nil {
			return nil, err
		}
	}
	return imageBody(f.Name(), res)
}

func (f *Flux) post(ctx context.Context, endpoint, prompt string) (*resty.Response, error) {
	res, err := f.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+f.apiKey).
		SetHeader("x-use-cache", "false").
		SetBody(map[string]string{"inputs": prompt}).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: flux: %v", ErrSoftFailure, err)
	}
	return res, nil
}

// Pollinations builds the image from a GET on the prompt URL. With styles
// set it becomes the creative provider and adds a random ?model=<style>.
type Pollinations struct {
	client    *resty.Client
	baseURL   string
	userAgent string
	name      string
	mode      models.ImageMode
	styles    []string
	pick      func(n int) int
}

func NewPollinations(cfg config.PollinationsConfig) *Pollinations {
	return &Pollinations{
		client:    resty.New().SetTimeout(cfg.Timeout),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		name:      "pollinations",
		mode:      models.ImageModePollinations,
	}
}

// NewCreative returns the styled variant. pick defaults to rand.Intn.
func NewCreative(cfg config.PollinationsConfig, pick func(n int) int) *Pollinations {
	p := NewPollinations(cfg)
	p.name = "creative"
	p.mode = models.ImageModeCreative
	p.styles = cfg.Styles
	p.pick = pick
	if p.pick == nil {
		p.pick = rand.Intn
	}
	return p
}

func (p *Pollinations) Name() string           { return p.name }
func (p *Pollinations) Mode() models.ImageMode { return p.mode }

func (p *Pollinations) TryGenerate(ctx context.Context, prompt string) ([]byte, error) {
	endpoint := p.baseURL + "/prompt/" + url.PathEscape(prompt)
	if len(p.styles) > 0 {
		endpoint += "?model=" + url.QueryEscape(p.styles[p.pick(len(p.styles))])
	}

	req := p.client.R().SetContext(ctx)
	if p.userAgent != "" {
		req.SetHeader("User-Agent", p.userAgent)
	}
	res, err := req.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSoftFailure, p.name, err)
	}
	return imageBody(p.name, res)
}

func imageBody(provider string, res *resty.Response) ([]byte, error) {
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrSoftFailure, provider, res.StatusCode())
	}
	contentType := strings.ToLower(res.Header().Get("Content-Type"))
	if !strings.Contains(contentType, "image") {
		return nil, fmt.Errorf("%w: %s returned non-image content %q", ErrSoftFailure, provider, contentType)
	}
	if len(res.Body()) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty body", ErrSoftFailure, provider)
	}
	return res.Body(), nil
}
