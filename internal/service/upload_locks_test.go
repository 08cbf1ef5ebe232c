package service

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAcquireIsExclusivePerKey(t *testing.T) {
	locks := NewUploadLocks()
	mediaID := uuid.New()

	require.True(t, locks.Acquire(mediaID, model.MediaKindFile))
	require.False(t, locks.Acquire(mediaID, model.MediaKindFile))

	// The other kind of the same media is an independent slot.
	require.True(t, locks.Acquire(mediaID, model.MediaKindThumb))

	locks.Release(mediaID, model.MediaKindFile)
	require.True(t, locks.Acquire(mediaID, model.MediaKindFile))
}

func TestReleaseUnknownKeyIsSafe(t *testing.T) {
	locks := NewUploadLocks()
	locks.Release(uuid.New(), model.MediaKindFile)
}

func TestConcurrentAcquireAdmitsExactlyOne(t *testing.T) {
	locks := NewUploadLocks()
	mediaID := uuid.New()

	const contenders = 64
	var winners int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if locks.Acquire(mediaID, model.MediaKindFile) {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int64(1), winners)
}
