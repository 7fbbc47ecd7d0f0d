package contract

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store holds the active contract. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	current Contract
}

func NewStore(c Contract) *Store {
	return &Store{current: c}
}

// Current returns the contract in effect.
func (s *Store) Current() Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the active contract after validating it.
func (s *Store) Set(c Contract) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
	return nil
}

// Watch reloads the contract file into store whenever it changes, until ctx
// is done. A file that fails to load is logged and the previous contract
// stays active. The parent directory is watched so editors that replace the
// file on save are handled.
func Watch(ctx context.Context, path string, store *Store, log *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	log = log.With("contract_path", abs)
	log.Info("watching contract file")

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			c, err := Load(abs)
			if err != nil {
				log.Error("contract reload failed, keeping previous version", "error", err)
				continue
			}
			if err := store.Set(c); err != nil {
				log.Error("contract rejected", "error", err)
				continue
			}
			log.Info("contract reloaded", "version", c.Version)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("contract watcher error", "error", err)
		}
	}
}
