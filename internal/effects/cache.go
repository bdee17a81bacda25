package effects

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// CueCache serves cue payloads from disk, refreshing from an upstream
// fetcher once entries exceed maxAge.
type CueCache struct {
	upstream Fetcher
	cacheDir string
	maxAge   time.Duration
	log      *logrus.Entry
}

type cacheMeta struct {
	Key       string    `json:"key"`
	Format    string    `json:"format"`
	Size      int       `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CacheInfo summarizes the on-disk cache.
type CacheInfo struct {
	Dir     string
	Entries int
	Bytes   int64
	Stale   int
	MaxAge  time.Duration
}

// NewCueCache wraps upstream with an on-disk cache in cacheDir.
func NewCueCache(upstream Fetcher, cacheDir string, maxAge time.Duration, log *logrus.Entry) *CueCache {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		log.WithError(err).Warn("Failed to create cue cache directory")
	}
	return &CueCache{
		upstream: upstream,
		cacheDir: cacheDir,
		maxAge:   maxAge,
		log:      log,
	}
}

// Fetch implements Fetcher. A failed refresh falls back to a stale entry.
func (c *CueCache) Fetch(ctx context.Context, key string) (Payload, error) {
	if c.isFresh(key) {
		if p, err := c.load(key); err == nil {
			return p, nil
		}
	}

	p, err := c.upstream.Fetch(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return Payload{}, err
		}
		if stale, cacheErr := c.load(key); cacheErr == nil {
			c.log.WithError(err).WithField("cue", key).Warn("Cue fetch failed, serving stale cache")
			return stale, nil
		}
		return Payload{}, err
	}

	if err := c.save(key, p); err != nil {
		c.log.WithError(err).WithField("cue", key).Warn("Failed to cache cue")
	}
	return p, nil
}

func (c *CueCache) paths(key string) (data, meta string) {
	base := filepath.Join(c.cacheDir, cacheName(key))
	return base + ".audio", base + ".json"
}

func cacheName(key string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(key)))
}

func (c *CueCache) isFresh(key string) bool {
	data, _ := c.paths(key)
	info, err := os.Stat(data)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < c.maxAge
}

func (c *CueCache) load(key string) (Payload, error) {
	dataPath, metaPath := c.paths(key)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to read cue metadata: %w", err)
	}
	var meta cacheMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Payload{}, fmt.Errorf("failed to decode cue metadata: %w", err)
	}
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to read cached cue: %w", err)
	}
	if len(data) != meta.Size {
		return Payload{}, fmt.Errorf("cached cue %s is truncated", key)
	}
	return Payload{Data: data, Format: meta.Format}, nil
}

func (c *CueCache) save(key string, p Payload) error {
	dataPath, metaPath := c.paths(key)
	if err := os.WriteFile(dataPath, p.Data, 0644); err != nil {
		return fmt.Errorf("failed to write cached cue: %w", err)
	}
	raw, err := json.MarshalIndent(cacheMeta{
		Key:       key,
		Format:    p.Format,
		Size:      len(p.Data),
		FetchedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cue metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, raw, 0644); err != nil {
		return fmt.Errorf("failed to write cue metadata: %w", err)
	}
	return nil
}

// Info reports the size and freshness of the cache.
func (c *CueCache) Info() (CacheInfo, error) {
	info := CacheInfo{Dir: c.cacheDir, MaxAge: c.maxAge}
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return info, fmt.Errorf("failed to read cue cache: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".audio") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info.Entries++
		info.Bytes += fi.Size()
		if time.Since(fi.ModTime()) >= c.maxAge {
			info.Stale++
		}
	}
	return info, nil
}

// Clear removes every cached cue.
func (c *CueCache) Clear() error {
	if err := os.RemoveAll(c.cacheDir); err != nil {
		return fmt.Errorf("failed to clear cue cache: %w", err)
	}
	c.log.Info("Cleared cue cache")
	return os.MkdirAll(c.cacheDir, 0755)
}
