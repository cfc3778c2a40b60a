package modelwatch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"civic_followup_engine/internal/classifier"
)

const defaultDebounce = 250 * time.Millisecond

// Swapper receives reloaded models.
type Swapper interface {
	Swap(m *classifier.Model) error
}

// Watcher reloads the model file when it is rewritten. The directory is
// watched rather than the file because saves replace the file by rename.
type Watcher struct {
	path     string
	store    classifier.ModelStore
	target   Swapper
	debounce time.Duration
	logger   *logrus.Entry

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

func New(path string, store classifier.ModelStore, target Swapper, logger *logrus.Entry) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve model path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch model dir: %w", err)
	}
	return &Watcher{
		path:     abs,
		store:    store,
		target:   target,
		debounce: defaultDebounce,
		logger:   logger.WithField("component", "modelwatch"),
		watcher:  fw,
	}, nil
}

// Run processes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	w.logger.WithField("path", w.path).Info("Watching decision model for changes")

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.WithField("op", event.Op.String()).Debug("Model file changed")
				w.schedule(ctx)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("fsnotify error")
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
}

func (w *Watcher) reload(ctx context.Context) {
	m, err := w.store.Load(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("Model file changed but could not be loaded, keeping current model")
		return
	}
	if err := w.target.Swap(m); err != nil {
		w.logger.WithError(err).Warn("Reloaded model rejected, keeping current model")
		return
	}
	w.logger.WithFields(logrus.Fields{
		"trained_at": m.TrainedAt,
		"accuracy":   m.Accuracy,
	}).Info("Decision model reloaded")
}
