package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticConns []string

func (s staticConns) LocalConnections() []string { return s }

type recordingPresence struct {
	mu      sync.Mutex
	calls   []string
	sweeps  int
	removed int
}

func (p *recordingPresence) Touch(_ context.Context, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "touch:"+connID)
}

func (p *recordingPresence) Sweep(context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "sweep")
	p.sweeps++
	return p.removed
}

func (p *recordingPresence) sweepCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sweeps
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPresenceWorker_TickTouchesBeforeSweep(t *testing.T) {
	p := &recordingPresence{removed: 3}
	w := NewPresenceWorker(discardLogger(), staticConns{"a", "b"}, p, time.Minute)

	w.Tick(context.Background())

	assert.Equal(t, []string{"touch:a", "touch:b", "sweep"}, p.calls)
}

func TestPresenceWorker_RunStopsOnCancel(t *testing.T) {
	p := &recordingPresence{}
	w := NewPresenceWorker(discardLogger(), staticConns{}, p, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return p.sweepCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestPresenceWorker_DisabledInterval(t *testing.T) {
	p := &recordingPresence{}
	w := NewPresenceWorker(discardLogger(), staticConns{"a"}, p, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, w.Run(ctx))
	assert.Zero(t, p.sweepCount())
}
