// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package timeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/stepcoach/internal/cache"
	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/log"
)

const (
	songExt          = ".yaml"
	defaultCacheTTL  = 10 * time.Minute
	debounceDuration = 250 * time.Millisecond
)

// Catalog serves song files from one directory. Parsed songs are cached
// until they expire or the file changes on disk.
type Catalog struct {
	dir    string
	ttl    time.Duration
	songs  *cache.Cache[*Song]
	logger zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timers  map[string]*time.Timer
	done    chan struct{}
}

// NewCatalog returns a catalog over dir. ttl <= 0 selects the default.
func NewCatalog(dir string, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Catalog{
		dir:    dir,
		ttl:    ttl,
		songs:  cache.New[*Song](time.Minute, nil),
		logger: log.WithComponent("timeline"),
		timers: make(map[string]*time.Timer),
	}
}

// Load parses and validates every song in the directory and primes the
// cache. It returns the song ids in order, or every problem found.
func (c *Catalog) Load(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("timeline: read %s: %w", c.dir, err)
	}
	var (
		ids  []string
		errs []error
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, ok := songIDFromFile(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		if _, err := c.load(id); err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	c.logger.Info().
		Str(log.FieldEvent, "timeline.loaded").
		Int("songs", len(ids)).
		Int("invalid", len(errs)).
		Msg("song catalog loaded")
	return ids, errors.Join(errs...)
}

// Build returns a fresh descriptor for songID. Session identity is left
// for the caller to fill in.
func (c *Catalog) Build(_ context.Context, songID string) (*model.SessionDescriptor, error) {
	if !ValidSongID(songID) {
		return nil, fmt.Errorf("%w: %q", ports.ErrUnknownSong, songID)
	}
	if s, ok := c.songs.Get(songID); ok {
		return s.descriptor(), nil
	}
	s, err := c.load(songID)
	if err != nil {
		return nil, err
	}
	return s.descriptor(), nil
}

func (c *Catalog) load(songID string) (*Song, error) {
	path := filepath.Join(c.dir, songID+songExt)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnknownSong, songID)
	}
	if err != nil {
		return nil, fmt.Errorf("timeline: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	s, err := ParseSong(f)
	if err != nil {
		return nil, fmt.Errorf("timeline: %s: %w", path, err)
	}
	if s.SongID == "" {
		s.SongID = songID
	}
	if s.SongID != songID {
		return nil, fmt.Errorf("timeline: %s declares songId %q", path, s.SongID)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("timeline: %s: %w", path, err)
	}
	c.songs.Set(songID, s, c.ttl)
	return s, nil
}

// Watch evicts cached songs when their files change, until ctx ends.
func (c *Catalog) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("timeline: create watcher: %w", err)
	}
	if err := w.Add(c.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("timeline: watch %s: %w", c.dir, err)
	}
	c.mu.Lock()
	c.watcher = w
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.logger.Info().Str(log.FieldEvent, "timeline.watcher_started").Str("dir", c.dir).Msg("watching song catalog")
	go func() {
		defer close(done)
		c.watchLoop(ctx, w)
	}()
	return nil
}

func (c *Catalog) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer func() { _ = w.Close() }()
	for {
		select {
		case <-ctx.Done():
			c.stopTimers()
			return
		case ev, ok := <-w.Events:
			if !ok {
				c.stopTimers()
				return
			}
			id, ok := songIDFromFile(filepath.Base(ev.Name))
			if !ok {
				continue
			}
			// Drop the stale entry now; re-parse after the writes settle so
			// a broken edit is reported once.
			c.songs.Delete(id)
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				c.logger.Info().Str(log.FieldEvent, "timeline.song_removed").Str(log.FieldSongID, id).Msg("song file removed")
				continue
			}
			c.scheduleReload(id)
		case err, ok := <-w.Errors:
			if !ok {
				c.stopTimers()
				return
			}
			c.logger.Error().Err(err).Str(log.FieldEvent, "timeline.watcher_error").Msg("song catalog watcher error")
		}
	}
}

func (c *Catalog) scheduleReload(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[id]; ok {
		t.Stop()
	}
	c.timers[id] = time.AfterFunc(debounceDuration, func() {
		c.mu.Lock()
		delete(c.timers, id)
		c.mu.Unlock()
		if _, err := c.load(id); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldEvent, "timeline.reload_failed").Str(log.FieldSongID, id).Msg("song file rejected")
			return
		}
		c.logger.Info().Str(log.FieldEvent, "timeline.song_reloaded").Str(log.FieldSongID, id).Msg("song file reloaded")
	})
}

func (c *Catalog) stopTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

// Close stops the watcher, if any, and the cache janitor.
func (c *Catalog) Close() error {
	c.mu.Lock()
	w, done := c.watcher, c.done
	c.watcher = nil
	c.mu.Unlock()
	if w != nil {
		_ = w.Close()
		<-done
	}
	c.songs.Stop()
	return nil
}

func songIDFromFile(name string) (string, bool) {
	if !strings.HasSuffix(name, songExt) {
		return "", false
	}
	id := strings.TrimSuffix(name, songExt)
	return id, ValidSongID(id)
}

var _ ports.DescriptorSource = (*Catalog)(nil)
