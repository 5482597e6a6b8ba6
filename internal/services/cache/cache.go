package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Kinds of cached answers
const (
	KindSearch = "search"
	KindCode   = "code"
)

// Service caches deterministic-enough answers (search and code help)
type Service interface {
	Get(ctx context.Context, kind, query string) (string, bool)
	Set(ctx context.Context, kind, query, answer string)
	Clear(ctx context.Context)
}

// HitObserver is told about every lookup
type HitObserver interface {
	RecordCacheHit()
	RecordCacheMiss()
}

type entry struct {
	answer    string
	createdAt time.Time
}

// Cache keeps answers in go-cache with the configured TTL
type Cache struct {
	enabled  bool
	cache    *cache.Cache
	logger   logrus.FieldLogger
	maxSize  int
	observer HitObserver
}

// NewCache returns a no-op cache when caching is disabled. observer may be nil.
func NewCache(cfg *config.CacheConfig, logger logrus.FieldLogger, observer HitObserver) *Cache {
	if !cfg.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled:  true,
		cache:    cache.New(cfg.TTL, cfg.TTL*2),
		logger:   logger.WithField("component", "cache"),
		maxSize:  cfg.MaxSize,
		observer: observer,
	}
}

func (c *Cache) Get(ctx context.Context, kind, query string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	val, found := c.cache.Get(key(kind, query))
	if !found {
		if c.observer != nil {
			c.observer.RecordCacheMiss()
		}
		return "", false
	}

	e := val.(entry)
	if c.observer != nil {
		c.observer.RecordCacheHit()
	}
	c.logger.WithFields(logrus.Fields{"kind": kind, "age": time.Since(e.createdAt)}).Debug("Cache hit")
	return e.answer, true
}

func (c *Cache) Set(ctx context.Context, kind, query, answer string) {
	if !c.enabled {
		return
	}

	if c.maxSize > 0 && c.cache.ItemCount() >= c.maxSize {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			c.logger.Warn("Cache size limit reached, flushing")
			c.cache.Flush()
		}
	}

	c.cache.SetDefault(key(kind, query), entry{answer: answer, createdAt: time.Now()})
}

func (c *Cache) Clear(ctx context.Context) {
	if !c.enabled {
		return
	}
	c.cache.Flush()
}

// queries differing only in case or spacing share an entry
func key(kind, query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	hash := sha256.Sum256([]byte(kind + ":" + normalized))
	return hex.EncodeToString(hash[:])
}
