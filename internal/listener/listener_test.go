package listener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"card-compare-engine/internal/catalog"
	"card-compare-engine/internal/storage"
)

func TestJitter(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := jitter(time.Second)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}
	assert.GreaterOrEqual(t, jitter(0), 500*time.Millisecond)
}

func TestListenAndRefresh_NoPool(t *testing.T) {
	done := make(chan struct{})
	go func() {
		ListenAndRefresh(context.Background(), storage.NewWithDB(nil, ""), catalog.New(), "", time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener should return when the store has no pool")
	}
}
