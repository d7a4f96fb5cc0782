package train

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// StopFile cancels the fit at the next batch boundary once a sentinel
// file appears on disk. Touching the file from another terminal stops
// a long run without killing the process, so the usual after_fit work
// (checkpoint restore, logging) still happens.
//
// A sentinel that already exists when the fit starts counts as a stop
// request; remove the file to train again.
type StopFile[B tensor.Backend] struct {
	path    string
	flag    atomic.Bool
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStopFile builds the callback for the given sentinel path. The
// parent directory must exist by the time the fit starts.
func NewStopFile[B tensor.Backend](path string) *StopFile[B] {
	return &StopFile[B]{path: filepath.Clean(path)}
}

func (c *StopFile[B]) Name() string { return "stop_file" }

// Requested reports whether a stop has been seen.
func (c *StopFile[B]) Requested() bool { return c.flag.Load() }

func (c *StopFile[B]) OnBeforeFit(l *Learner[B]) error {
	c.flag.Store(false)
	if _, err := os.Stat(c.path); err == nil {
		c.flag.Store(true)
		l.Logger().Warn("stop file already present", zap.String("path", c.path))
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("train: stop_file: %w", err)
	}
	if err := w.Add(filepath.Dir(c.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("train: stop_file: watch %s: %w", filepath.Dir(c.path), err)
	}
	c.watcher = w
	c.done = make(chan struct{})
	go c.run(l.Logger())
	return nil
}

func (c *StopFile[B]) run(log *zap.Logger) {
	defer close(c.done)
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != c.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				log.Info("stop file detected", zap.String("path", c.path))
				c.flag.Store(true)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("stop file watcher error", zap.Error(err))
		}
	}
}

func (c *StopFile[B]) OnAfterBatch(_ *Learner[B]) error {
	if c.flag.Load() {
		return ErrCancelFit
	}
	return nil
}

func (c *StopFile[B]) OnAfterFit(_ *Learner[B]) error {
	if c.watcher == nil {
		return nil
	}
	err := c.watcher.Close()
	<-c.done
	c.watcher = nil
	c.done = nil
	return err
}
