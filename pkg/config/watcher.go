package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/vibgyor/rtc/pkg/logger"
)

// Watcher reloads the config file on change and hands the fresh
// config to the callback. Used for runtime log level switching,
// nothing else is safe to change while the client is connected.
type Watcher struct {
	w    *fsnotify.Watcher
	path string
	done chan struct{}
	log  *logger.Logger
}

func NewWatcher(path string, log *logger.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory, editors tend to replace the file on save
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &Watcher{w: w, path: path, done: make(chan struct{}), log: log}, nil
}

func (w *Watcher) Run(onChange func(conf ClientConfig)) {
	go func() {
		for {
			select {
			case ev, ok := <-w.w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				var conf ClientConfig
				if err := LoadConfig(&conf, filepath.Dir(w.path)); err != nil {
					w.log.Warn().Err(err).Msg("skip config reload")
					continue
				}
				conf.fixValues()
				w.log.Info().Str("file", w.path).Msg("config reloaded")
				onChange(conf)
			case err, ok := <-w.w.Errors:
				if !ok {
					return
				}
				w.log.Error().Err(err).Msg("config watch")
			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) Close() {
	close(w.done)
	_ = w.w.Close()
}
