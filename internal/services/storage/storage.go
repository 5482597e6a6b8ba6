package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/artovix-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Document is the whole persisted structure: user id -> raw profile entry.
// Entries stay raw so profiles written in the old list layout survive a load.
type Document map[string]json.RawMessage

// Backend loads and stores the complete document. Implementations do not
// need to be safe for concurrent use; Manager serializes every call.
type Backend interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
	Close() error
}

// OpObserver receives one call per backend operation, e.g. for prometheus.
type OpObserver func(operation, status string)

// Manager is the conversation store. Every read and write goes through one
// mutex and rewrites the full document; I/O errors are logged and never
// returned to callers.
type Manager struct {
	mu      sync.Mutex
	backend Backend
	logger  logrus.FieldLogger
	observe OpObserver
}

// NewBackend builds the backend named by cfg.Type
func NewBackend(ctx context.Context, cfg *config.StorageConfig) (Backend, error) {
	switch cfg.Type {
	case "file":
		return NewFileBackend(cfg.File.Path), nil
	case "redis":
		client, err := DialRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisBackend(client, cfg.Redis.Key), nil
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// NewManager wraps backend; observe may be nil.
func NewManager(backend Backend, logger logrus.FieldLogger, observe OpObserver) *Manager {
	if observe == nil {
		observe = func(string, string) {}
	}
	return &Manager{
		backend: backend,
		logger:  logger.WithField("component", "storage"),
		observe: observe,
	}
}

// Close releases the backend
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Close()
}

func (m *Manager) load(ctx context.Context) (Document, error) {
	doc, err := m.backend.Load(ctx)
	if err != nil {
		m.observe("load", "error")
		return nil, err
	}
	m.observe("load", "success")
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

func (m *Manager) save(ctx context.Context, doc Document) error {
	if err := m.backend.Save(ctx, doc); err != nil {
		m.observe("save", "error")
		return err
	}
	m.observe("save", "success")
	return nil
}

// GetProfile returns the stored profile for userID, or an empty one when the
// user is unknown or the store cannot be read.
func (m *Manager) GetProfile(ctx context.Context, userID string) models.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load(ctx)
	if err != nil {
		m.logger.WithError(err).WithField("user_id", userID).Error("Failed to load profiles")
		return models.NewUserProfile()
	}
	return m.decode(userID, doc[userID])
}

// SaveProfile replaces the profile for userID. The write is dropped when the
// current document cannot be read, so other users are never overwritten
// with an empty document.
func (m *Manager) SaveProfile(ctx context.Context, userID string, profile models.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mutate(ctx, userID, func(models.UserProfile) models.UserProfile { return profile })
}

// GetSetting returns the named setting or def when it is unset.
func (m *Manager) GetSetting(ctx context.Context, userID, key, def string) string {
	profile := m.GetProfile(ctx, userID)
	if v, ok := profile.Settings[key]; ok && v != "" {
		return v
	}
	return def
}

// UpdateSetting stores one setting in the user's profile
func (m *Manager) UpdateSetting(ctx context.Context, userID, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mutate(ctx, userID, func(p models.UserProfile) models.UserProfile {
		p.Settings[key] = value
		return p
	})
}

// ClearHistory empties the user's history and keeps the settings.
func (m *Manager) ClearHistory(ctx context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mutate(ctx, userID, func(p models.UserProfile) models.UserProfile {
		p.History = []models.Message{}
		return p
	})
}

// CountProfiles reports how many users have a stored profile.
func (m *Manager) CountProfiles(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to load profiles")
		return 0
	}
	return len(doc)
}

// mutate must be called with mu held
func (m *Manager) mutate(ctx context.Context, userID string, fn func(models.UserProfile) models.UserProfile) {
	log := m.logger.WithField("user_id", userID)

	doc, err := m.load(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load profiles, dropping write")
		return
	}

	profile := fn(m.decode(userID, doc[userID]))
	if profile.History == nil {
		profile.History = []models.Message{}
	}
	if profile.Settings == nil {
		profile.Settings = map[string]string{}
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		log.WithError(err).Error("Failed to encode profile")
		return
	}
	doc[userID] = raw

	if err := m.save(ctx, doc); err != nil {
		log.WithError(err).Error("Failed to save profiles")
	}
}

func (m *Manager) decode(userID string, raw json.RawMessage) models.UserProfile {
	profile := models.NewUserProfile()
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return profile
	}

	// legacy layout: the entry is the bare history list
	if trimmed[0] == '[' {
		var history []models.Message
		if err := json.Unmarshal(trimmed, &history); err != nil {
			m.logger.WithError(err).WithField("user_id", userID).Warn("Unreadable legacy profile, using default")
			return profile
		}
		if history != nil {
			profile.History = history
		}
		return profile
	}

	var stored models.UserProfile
	if err := json.Unmarshal(trimmed, &stored); err != nil {
		m.logger.WithError(err).WithField("user_id", userID).Warn("Unreadable profile, using default")
		return profile
	}
	if stored.History != nil {
		profile.History = stored.History
	}
	if stored.Settings != nil {
		profile.Settings = stored.Settings
	}
	return profile
}
