package config

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// WatcherConfig configures NewWatcher.
type WatcherConfig struct {
	Loader    *Loader
	Profile   string
	Overrides Overrides
	Logger    hclog.Logger
	Debounce  time.Duration
	// OnChange receives the re-resolved policy. It is not called when the
	// changed files fail to load or validate.
	OnChange func(Params)
}

// Watcher reloads policy when default.yaml or the profile file changes.
type Watcher struct {
	cfg    WatcherConfig
	logger hclog.Logger
	fs     *fsnotify.Watcher
	names  map[string]bool
}

// NewWatcher starts watching the policy directory. The directory rather than
// the files is watched so that editors which replace files are handled.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Loader == nil {
		return nil, errors.New("watcher needs a loader")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	paths := cfg.Loader.Paths()
	if err := fsw.Add(paths.Dir()); err != nil {
		fsw.Close()
		return nil, err
	}
	names := map[string]bool{filepath.Base(paths.DefaultPath()): true}
	if cfg.Profile != "" {
		names[filepath.Base(paths.ProfilePath(cfg.Profile))] = true
	}
	return &Watcher{
		cfg:    cfg,
		logger: logger.Named("config"),
		fs:     fsw,
		names:  names,
	}, nil
}

// Run handles file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.names[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.logger.Debug("policy file changed", "path", event.Name, "op", event.Op.String())
				reload = time.After(w.cfg.Debounce)
			}
		case <-reload:
			reload = nil
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("policy watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	w.cfg.Loader.Invalidate()
	_, params, err := w.cfg.Loader.Resolve(w.cfg.Profile, w.cfg.Overrides)
	if err != nil {
		w.logger.Error("policy reload rejected, keeping current policy", "error", err)
		return
	}
	w.logger.Info("policy reloaded", "profile", w.cfg.Profile, "version", params.Version)
	if w.cfg.OnChange != nil {
		w.cfg.OnChange(params)
	}
}
