package groutine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoCarriesName(t *testing.T) {
	got := make(chan string, 1)

	Go(context.Background(), "flow-DE:AD:BE:EF:00:01", func(ctx context.Context) {
		got <- Name(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "flow-DE:AD:BE:EF:00:01", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
}

func TestGoToleratesNilContext(t *testing.T) {
	done := make(chan context.Context, 1)

	Go(nil, "orphan", func(ctx context.Context) {
		done <- ctx
	})

	select {
	case ctx := <-done:
		require.NotNil(t, ctx)
		assert.Equal(t, "orphan", Name(ctx))
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
}

func TestGoWGAccountsCompletion(t *testing.T) {
	var wg sync.WaitGroup
	ran := false

	GoWG(context.Background(), &wg, "pump", func(context.Context) {
		ran = true
	})
	wg.Wait()

	assert.True(t, ran)
}

func TestNameOutsideManagedGoroutine(t *testing.T) {
	assert.Equal(t, "", Name(context.Background()))
	assert.Equal(t, "", Name(nil))
}
