package instrument

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
)

func newAvailable(t *testing.T, store *InMemoryStore) Instrument {
	t.Helper()
	inst := Instrument{
		ID:        id.NewInstrumentID(),
		Name:      "hematology-01",
		Mode:      ModeReady,
		Status:    StatusAvailable,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.Save(context.Background(), inst))
	return inst
}

func TestClaim_OnlyOneWinnerUnderConcurrency(t *testing.T) {
	store := NewInMemoryStore()
	inst := newAvailable(t, store)

	const goroutines = 20
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Claim(context.Background(), inst.ID); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one concurrent claim must win")

	got, err := store.FindByID(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestClaim_Errors(t *testing.T) {
	store := NewInMemoryStore()

	t.Run("unknown instrument", func(t *testing.T) {
		err := store.Claim(context.Background(), id.NewInstrumentID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("already running", func(t *testing.T) {
		inst := newAvailable(t, store)
		require.NoError(t, store.Claim(context.Background(), inst.ID))
		err := store.Claim(context.Background(), inst.ID)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})
}

func TestRelease(t *testing.T) {
	store := NewInMemoryStore()
	inst := newAvailable(t, store)

	t.Run("not running", func(t *testing.T) {
		err := store.Release(context.Background(), inst.ID, StatusAvailable)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("running to available", func(t *testing.T) {
		require.NoError(t, store.Claim(context.Background(), inst.ID))
		require.NoError(t, store.Release(context.Background(), inst.ID, StatusAvailable))

		got, err := store.FindByID(context.Background(), inst.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusAvailable, got.Status)
	})
}

func TestSetMode(t *testing.T) {
	store := NewInMemoryStore()
	inst := newAvailable(t, store)

	require.NoError(t, store.SetMode(context.Background(), inst.ID, ModeMaintenance, "quarterly calibration"))

	got, err := store.FindByID(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, ModeMaintenance, got.Mode)
	assert.Equal(t, "quarterly calibration", got.ModeReason)
}
