package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/go-redis/redis/v8"
)

// MemoryBackend keeps the document in process memory
type MemoryBackend struct {
	data []byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load(ctx context.Context) (Document, error) {
	return decodeDocument(b.data)
}

func (b *MemoryBackend) Save(ctx context.Context, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	b.data = data
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

// FileBackend stores the document as an indented JSON file
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Load(ctx context.Context) (Document, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return decodeDocument(data)
}

// Save writes to a temp file next to the target and renames it into place.
func (b *FileBackend) Save(ctx context.Context, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

func (b *FileBackend) Close() error { return nil }

// RedisBackend stores the whole document as one JSON string under key
type RedisBackend struct {
	client *redis.Client
	key    string
}

// DialRedis connects and pings the configured server
func DialRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key}
}

func (b *RedisBackend) Load(ctx context.Context) (Document, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err == redis.Nil {
		return Document{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(data)
}

func (b *RedisBackend) Save(ctx context.Context, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, b.key, data, 0).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func decodeDocument(data []byte) (Document, error) {
	doc := Document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return doc, nil
}
