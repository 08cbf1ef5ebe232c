package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEnsureRegistersExactlyOnceUnderFanOut(t *testing.T) {
	var calls int64
	r := NewRegistrar(model.RegisterInstallationRequest{ID: uuid.New()},
		func(ctx context.Context, req model.RegisterInstallationRequest) error {
			atomic.AddInt64(&calls, 1)
			return nil
		})

	// Startup fans out many workers whose first request all race here.
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, r.Ensure(context.Background()))
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), calls)
}

func TestEnsureRetriesAfterFailure(t *testing.T) {
	var calls int64
	r := NewRegistrar(model.RegisterInstallationRequest{ID: uuid.New()},
		func(ctx context.Context, req model.RegisterInstallationRequest) error {
			if atomic.AddInt64(&calls, 1) == 1 {
				return errors.New("server unreachable")
			}
			return nil
		})

	require.Error(t, r.Ensure(context.Background()))
	require.NoError(t, r.Ensure(context.Background()))
	require.NoError(t, r.Ensure(context.Background()))
	require.Equal(t, int64(2), calls)
}
