package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/artovix-tgbot-go/internal/models"
	"github.com/artovix-tgbot-go/internal/services/ai"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var png = []byte("\x89PNG fake")

type stubProvider struct {
	name  string
	mode  models.ImageMode
	img   []byte
	calls int
}

func (s *stubProvider) Name() string           { return s.name }
func (s *stubProvider) Mode() models.ImageMode { return s.mode }
func (s *stubProvider) TryGenerate(ctx context.Context, prompt string) ([]byte, error) {
	s.calls++
	if s.img == nil {
		return nil, ErrSoftFailure
	}
	return s.img, nil
}

type stubDescriber struct {
	enabled bool
	reply   string
	err     error
	reqs    []ai.ChatRequest
}

func (d *stubDescriber) Enabled() bool { return d.enabled }
func (d *stubDescriber) Chat(ctx context.Context, req ai.ChatRequest) (string, error) {
	d.reqs = append(d.reqs, req)
	return d.reply, d.err
}

func failingProviders() []*stubProvider {
	return []*stubProvider{
		{name: "flux", mode: models.ImageModeFlux},
		{name: "pollinations", mode: models.ImageModePollinations},
		{name: "creative", mode: models.ImageModeCreative},
	}
}

func asProviders(stubs []*stubProvider) []Provider {
	out := make([]Provider, len(stubs))
	for i, s := range stubs {
		out[i] = s
	}
	return out
}

func newChain(stubs []*stubProvider, d Describer) *Chain {
	log, _ := test.NewNullLogger()
	return NewChain(asProviders(stubs), d, log, nil)
}

func TestAutoModeStopsAtFirstSuccess(t *testing.T) {
	stubs := failingProviders()
	stubs[1].img = png

	res, err := newChain(stubs, &stubDescriber{enabled: true}).Generate(context.Background(), "a fox", models.ImageModeAuto)

	require.NoError(t, err)
	assert.True(t, res.IsImage())
	assert.Equal(t, "pollinations", res.Provider)
	assert.Equal(t, 1, stubs[0].calls)
	assert.Equal(t, 0, stubs[2].calls)
}

func TestAutoModeFallsBackToDescription(t *testing.T) {
	stubs := failingProviders()
	d := &stubDescriber{enabled: true, reply: "A fox made of embers."}

	res, err := newChain(stubs, d).Generate(context.Background(), "  a fox ", models.ImageModeAuto)

	require.NoError(t, err)
	assert.False(t, res.IsImage())
	require.NotNil(t, res.Description)
	assert.Equal(t, Description{Prompt: "a fox", Text: "A fox made of embers."}, *res.Description)
	require.Len(t, d.reqs, 1)
	assert.Equal(t, "Create a detailed visual description for: a fox", d.reqs[0].Prompt)
	assert.Equal(t, ai.ProfileImageCaption, d.reqs[0].Profile)
	for _, s := range stubs {
		assert.Equal(t, 1, s.calls)
	}
}

func TestAutoModeWithoutBackendReturnsDisabledPayload(t *testing.T) {
	d := &stubDescriber{enabled: false}

	res, err := newChain(failingProviders(), d).Generate(context.Background(), "a fox", models.ImageModeAuto)

	require.NoError(t, err)
	require.NotNil(t, res.Description)
	assert.True(t, res.Description.Disabled)
	assert.Empty(t, d.reqs)
}

func TestAutoModeDescriptionFailureIsNoResult(t *testing.T) {
	d := &stubDescriber{enabled: true, err: &ai.CallError{Op: "chat", Err: errors.New("timeout")}}

	_, err := newChain(failingProviders(), d).Generate(context.Background(), "a fox", models.ImageModeAuto)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestSpecificModeNeverFallsBack(t *testing.T) {
	stubs := failingProviders()
	stubs[1].img = png
	d := &stubDescriber{enabled: true, reply: "text"}

	_, err := newChain(stubs, d).Generate(context.Background(), "a fox", models.ImageModeFlux)

	assert.ErrorIs(t, err, ErrNoResult)
	assert.Equal(t, 1, stubs[0].calls)
	assert.Equal(t, 0, stubs[1].calls)
	assert.Empty(t, d.reqs)
}

func TestSpecificModeWithoutRegisteredProvider(t *testing.T) {
	stubs := failingProviders()[1:]
	_, err := newChain(stubs, &stubDescriber{enabled: true}).Generate(context.Background(), "a fox", models.ImageModeFlux)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestBlankPromptIsNoResult(t *testing.T) {
	stubs := failingProviders()
	_, err := newChain(stubs, nil).Generate(context.Background(), "   ", models.ImageModeAuto)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Equal(t, 0, stubs[0].calls)
}

func TestFluxRetriesMovedEndpointOnce(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()

		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		assert.Equal(t, "false", r.Header.Get("x-use-cache"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a fox", body["inputs"])

		if r.URL.Path == "/models/flux" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(png)
	}))
	defer srv.Close()

	f := NewFlux(config.FluxConfig{APIKey: "hf_test", URL: srv.URL + "/models/flux", FallbackURL: srv.URL + "/router/flux"})
	img, err := f.TryGenerate(context.Background(), "a fox")

	require.NoError(t, err)
	assert.Equal(t, png, img)
	assert.Equal(t, map[string]int{"/models/flux": 1, "/router/flux": 1}, hits)
}

func TestFluxNonImageIsSoftFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"loading"}`))
	}))
	defer srv.Close()

	f := NewFlux(config.FluxConfig{APIKey: "k", URL: srv.URL})
	_, err := f.TryGenerate(context.Background(), "a fox")
	assert.ErrorIs(t, err, ErrSoftFailure)
}

func TestPollinationsAndCreativeURLs(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotUA = r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(png)
	}))
	defer srv.Close()

	cfg := config.PollinationsConfig{
		BaseURL:   srv.URL + "/",
		UserAgent: "Mozilla/5.0",
		Styles:    []string{"digital-art", "neon-punk"},
	}

	img, err := NewPollinations(cfg).TryGenerate(context.Background(), "a red fox")
	require.NoError(t, err)
	assert.Equal(t, png, img)
	assert.Equal(t, "/prompt/a red fox", gotPath)
	assert.Empty(t, gotQuery)
	assert.Equal(t, "Mozilla/5.0", gotUA)

	creative := NewCreative(cfg, func(n int) int { return n - 1 })
	assert.Equal(t, models.ImageModeCreative, creative.Mode())
	_, err = creative.TryGenerate(context.Background(), "a red fox")
	require.NoError(t, err)
	assert.Equal(t, "model=neon-punk", gotQuery)
}

func TestPollinationsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewPollinations(config.PollinationsConfig{BaseURL: srv.URL}).TryGenerate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSoftFailure)
}

func TestDefaultProvidersRegistersFluxOnlyWithKey(t *testing.T) {
	cfg := &config.ImagesConfig{}
	names := func(ps []Provider) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Name())
		}
		return out
	}

	assert.Equal(t, []string{"pollinations", "creative"}, names(DefaultProviders(cfg)))
	cfg.Flux.APIKey = "hf"
	assert.Equal(t, []string{"flux", "pollinations", "creative"}, names(DefaultProviders(cfg)))
}
