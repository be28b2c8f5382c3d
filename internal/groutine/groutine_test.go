package groutine_test

import (
	"context"
	"runtime/pprof"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srg/blemu/internal/groutine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_NameAndLabel(t *testing.T) {
	type result struct {
		name  string
		label string
	}
	done := make(chan result, 1)

	groutine.Go(nil, "worker-42", func(ctx context.Context) {
		label, _ := pprof.Label(ctx, "goroutine_name")
		done <- result{name: groutine.GetName(ctx), label: label}
	})

	select {
	case r := <-done:
		assert.Equal(t, "worker-42", r.name, "context MUST carry the goroutine name")
		assert.Equal(t, "worker-42", r.label, "pprof label MUST carry the goroutine name")
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine MUST run")
	}

	assert.Empty(t, groutine.GetName(context.Background()))
	assert.Empty(t, groutine.GetName(nil))
}

func TestGroup_WaitsForAll(t *testing.T) {
	var g groutine.Group
	var finished atomic.Int32
	release := make(chan struct{})

	for i := 0; i < 3; i++ {
		g.Go(context.Background(), "waiter", func(ctx context.Context) {
			<-release
			finished.Add(1)
		})
	}

	waited := make(chan struct{})
	go func() {
		g.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait MUST block while goroutines run")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait MUST return once every goroutine finished")
	}
	require.Equal(t, int32(3), finished.Load())
}
