package train_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/anvil-ml/anvil/internal/train"
)

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestStopFile_PreexistingFileCancelsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "STOP")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	backend := newBackend()
	stop := train.NewStopFile[recB](path)
	l := newTestLearner(backend, train.WithCallbacks[recB](stop))
	loader := blobsLoader(backend, 64, 16)

	require.NoError(t, l.Fit(context.Background(), 10, loader, nil))

	assert.True(t, stop.Requested())
	assert.Equal(t, int64(1), l.Step, "cancelled at the first batch boundary")
}

func TestStopFile_DetectsFileDuringFit(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "STOP")
	backend := newBackend()
	stop := train.NewStopFile[recB](path)

	wrote := false
	writer := &eventTap{name: "writer", hook: func(ev train.Event, l *train.Learner[recB]) error {
		if ev != train.AfterBatch || wrote {
			return nil
		}
		wrote = true
		require.NoError(t, os.WriteFile(path, []byte("halt"), 0o644))
		require.True(t, waitFor(stop.Requested, 5*time.Second), "watcher should pick the file up")
		return nil
	}}

	l := newTestLearner(backend, train.WithCallbacks[recB](stop, writer))
	loader := blobsLoader(backend, 64, 16)

	require.NoError(t, l.Fit(context.Background(), 10, loader, nil))
	assert.Equal(t, int64(2), l.Step, "one batch to write the file, one to observe the stop")
}

func TestStopFile_MissingDirFailsFit(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "nope", "STOP")
	backend := newBackend()
	stop := train.NewStopFile[recB](path)
	l := newTestLearner(backend, train.WithCallbacks[recB](stop))
	loader := blobsLoader(backend, 16, 16)

	err := l.Fit(context.Background(), 1, loader, nil)
	require.ErrorContains(t, err, "stop_file")
}
