package hold

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paperTrader/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ExclusivePerKey(t *testing.T) {
	m := NewManager(time.Second)
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Do(ctx, PositionKey(1), func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					seen := atomic.LoadInt32(&maxSeen)
					if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, 0, m.Len(), "entries are released after the last holder")
}

func TestManager_UnrelatedKeysDoNotBlock(t *testing.T) {
	m := NewManager(50 * time.Millisecond)
	ctx := context.Background()

	release, err := m.Acquire(ctx, PositionKey(1))
	require.NoError(t, err)
	defer release()

	other, err := m.Acquire(ctx, PositionKey(2))
	require.NoError(t, err)
	other()
}

func TestManager_AcquireOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		ctx     func() (context.Context, context.CancelFunc)
		wantErr []error
	}{
		{
			name: "hold timeout is contention",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			wantErr: []error{ports.ErrContention, ports.ErrHoldTimeout},
		},
		{
			name: "caller cancellation",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
			wantErr: []error{ports.ErrContextCanceled},
		},
		{
			name: "caller deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 5*time.Millisecond)
			},
			wantErr: []error{ports.ErrTimeout},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(200 * time.Millisecond)
			release, err := m.Acquire(context.Background(), PairKey("rsi", "ETHUSDT"))
			require.NoError(t, err)
			defer release()

			ctx, cancel := tt.ctx()
			defer cancel()

			_, err = m.Acquire(ctx, PairKey("rsi", "ETHUSDT"))
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
			assert.Equal(t, 1, m.Len())
		})
	}
}

func TestManager_ReleaseIsIdempotent(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	release, err := m.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	again, err := m.Acquire(context.Background(), "k")
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, m.Len())
}
