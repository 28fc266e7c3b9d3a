package lifecycle

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"paperTrader/internal/adapters/sqlite"
	"paperTrader/internal/domain"
	"paperTrader/internal/hold"
	"paperTrader/internal/ports"
	"paperTrader/internal/recorder"
	"paperTrader/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var t0 = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

type harness struct {
	mgr   *Manager
	repo  *sqlite.Repository
	holds *hold.Manager
}

func newHarness(t *testing.T, holdTimeout time.Duration) *harness {
	t.Helper()
	logger := &mockLogger{}

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: filepath.Join(t.TempDir(), "lifecycle.db"), Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	trades, err := recorder.NewTrades(recorder.TradeConfig{Logger: logger})
	require.NoError(t, err)

	holds := hold.NewManager(holdTimeout)
	mgr, err := NewManager(Config{
		Store:  repo,
		Holds:  holds,
		Risk:   risk.NewRiskManager(risk.RiskConfig{MaxQuantity: 10, MaxOpenPositions: 5}),
		Trades: trades,
		Audit:  recorder.NewAudit(repo, func() time.Time { return t0.Add(24 * time.Hour) }),
		Logger: logger,
		Now:    func() time.Time { return t0.Add(2 * time.Hour) },
	})
	require.NoError(t, err)
	return &harness{mgr: mgr, repo: repo, holds: holds}
}

func strategy(id string) *domain.Strategy {
	return &domain.Strategy{
		ID:          id,
		Instruments: []string{"ETHUSDT", "BTCUSDT"},
		Direction:   domain.Long,
		Enabled:     true,
		Risk: domain.RiskParams{
			Quantity:      2,
			StopLossPct:   0.05,
			TakeProfitPct: 0.05,
		},
	}
}

func (h *harness) open(t *testing.T, s *domain.Strategy, instrument string, price float64) *domain.Position {
	t.Helper()
	pos, err := h.mgr.Open(context.Background(), OpenRequest{
		Strategy:   s,
		Instrument: instrument,
		Price:      price,
		At:         t0,
		Audit:      &domain.AuditEntry{CycleID: "cycle-open", TriggeredConditions: []string{"entry"}},
	})
	require.NoError(t, err)
	return pos
}

func TestManager_OpenCreatesExactlyOnePosition(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()

	pos := h.open(t, strategy("rsi"), "ETHUSDT", 100)
	assert.Equal(t, 100.0, pos.EntryPrice)
	require.NotNil(t, pos.StopLoss)
	require.NotNil(t, pos.TakeProfit)
	assert.InDelta(t, 95.0, *pos.StopLoss, 1e-9)
	assert.InDelta(t, 105.0, *pos.TakeProfit, 1e-9)

	positions, err := h.repo.ListPositions(ctx, ports.PositionFilter{StrategyID: "rsi"})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 100.0, positions[0].EntryPrice)
	assert.Equal(t, domain.StatusOpen, positions[0].Status)

	entries, err := h.repo.ListAudit(ctx, ports.AuditFilter{StrategyID: "rsi"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SignalEntry, entries[0].Signal)
	require.NotNil(t, entries[0].PositionID)
	assert.Equal(t, pos.ID, *entries[0].PositionID)
	assert.Equal(t, []string{"entry"}, entries[0].TriggeredConditions)

	// A second entry signal for the same pair is a contended no-op.
	_, err = h.mgr.Open(ctx, OpenRequest{Strategy: strategy("rsi"), Instrument: "ETHUSDT", Price: 101, At: t0})
	assert.ErrorIs(t, err, ports.ErrContention)

	count, err := h.repo.CountOpenPositions(ctx, "rsi")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManager_OpenRejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, h *harness)
		mutate  func(s *domain.Strategy)
		price   float64
		wantErr error
	}{
		{
			name:    "quantity above max",
			mutate:  func(s *domain.Strategy) { s.Risk.Quantity = 11 },
			price:   100,
			wantErr: ports.ErrInvariantViolation,
		},
		{
			name:    "non-positive entry price",
			price:   0,
			wantErr: ports.ErrInvariantViolation,
		},
		{
			name:    "NaN entry price",
			price:   math.NaN(),
			wantErr: ports.ErrInvariantViolation,
		},
		{
			name:    "infinite entry price",
			price:   math.Inf(1),
			wantErr: ports.ErrInvariantViolation,
		},
		{
			name: "max concurrent positions",
			setup: func(t *testing.T, h *harness) {
				s := strategy("rsi")
				s.Risk.MaxOpenPositions = 1
				h.open(t, s, "BTCUSDT", 40000)
			},
			mutate:  func(s *domain.Strategy) { s.Risk.MaxOpenPositions = 1 },
			price:   100,
			wantErr: ports.ErrRiskLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Second)
			if tt.setup != nil {
				tt.setup(t, h)
			}
			s := strategy("rsi")
			if tt.mutate != nil {
				tt.mutate(s)
			}

			pos, err := h.mgr.Open(context.Background(), OpenRequest{Strategy: s, Instrument: "ETHUSDT", Price: tt.price, At: t0})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, pos)

			open, err := h.repo.FindOpenPosition(context.Background(), "rsi", "ETHUSDT")
			require.NoError(t, err)
			assert.Nil(t, open)
		})
	}
}

func TestManager_TakeProfitThenStopLossPath(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	pos := h.open(t, strategy("rsi"), "ETHUSDT", 100)

	var trades []*domain.Trade
	for i, price := range []float64{106, 94} {
		current, err := h.repo.FindPositionByID(ctx, pos.ID)
		require.NoError(t, err)

		decision, ok := EvaluateExit(current, price, false)
		if !ok {
			continue
		}
		trade, err := h.mgr.Close(ctx, CloseRequest{
			PositionID: pos.ID,
			Price:      decision.Price,
			Reason:     decision.Reason,
			At:         t0.Add(time.Duration(i+1) * time.Hour),
		})
		require.NoError(t, err)
		trades = append(trades, trade)
	}

	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitTakeProfit, trades[0].ExitReason)
	assert.InDelta(t, 105.0, trades[0].ExitPrice, 1e-9)
	assert.InDelta(t, 5.0*pos.Quantity, trades[0].PNL, 1e-9)

	count, err := h.repo.CountTrades(ctx, ports.TradeFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManager_ConcurrentClosesCreateOneTrade(t *testing.T) {
	h := newHarness(t, 10*time.Second)
	ctx := context.Background()
	pos := h.open(t, strategy("rsi"), "ETHUSDT", 100)

	var hookCalls int32
	var hookMu sync.Mutex
	h.mgr.Subscribe(func(*domain.Trade) {
		hookMu.Lock()
		hookCalls++
		hookMu.Unlock()
	})

	const attempts = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		contended int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.mgr.Close(ctx, CloseRequest{
				PositionID: pos.ID,
				Price:      96 + float64(i)/10,
				Reason:     domain.ExitSignal,
				At:         t0.Add(time.Hour),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ports.ErrContention):
				contended++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, contended)
	assert.Equal(t, int32(1), hookCalls)

	count, err := h.repo.CountTrades(ctx, ports.TradeFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	trade, err := h.repo.FindTradeByPositionID(ctx, pos.ID)
	require.NoError(t, err)
	require.NotNil(t, trade)
	closed, err := h.repo.FindPositionByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, trade.ExitPrice, closed.ExitPrice)
	assert.Equal(t, trade.PNL, closed.PNL)
}

func TestManager_HoldTimeoutIsContention(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)
	ctx := context.Background()
	pos := h.open(t, strategy("rsi"), "ETHUSDT", 100)

	release, err := h.holds.Acquire(ctx, hold.PositionKey(pos.ID))
	require.NoError(t, err)

	_, err = h.mgr.Close(ctx, CloseRequest{PositionID: pos.ID, Price: 101, Reason: domain.ExitSignal, At: t0.Add(time.Hour)})
	assert.ErrorIs(t, err, ports.ErrContention)
	assert.ErrorIs(t, err, ports.ErrHoldTimeout)
	release()

	// Unrelated positions were never blocked and the held one still closes afterwards.
	_, err = h.mgr.Close(ctx, CloseRequest{PositionID: pos.ID, Price: 101, Reason: domain.ExitSignal, At: t0.Add(time.Hour)})
	require.NoError(t, err)
}

func TestManager_FailedCloseLeavesNoPartialState(t *testing.T) {
	tests := []struct {
		name    string
		ctx     func() context.Context
		req     func(id int64) CloseRequest
		wantErr error
	}{
		{
			name: "cancelled context",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			req: func(id int64) CloseRequest {
				return CloseRequest{PositionID: id, Price: 101, Reason: domain.ExitSignal, At: t0.Add(time.Hour)}
			},
			wantErr: ports.ErrContextCanceled,
		},
		{
			name: "exit before entry",
			ctx:  context.Background,
			req: func(id int64) CloseRequest {
				return CloseRequest{PositionID: id, Price: 101, Reason: domain.ExitSignal, At: t0.Add(-time.Hour)}
			},
			wantErr: ports.ErrInvariantViolation,
		},
		{
			name: "implausible exit price",
			ctx:  context.Background,
			req: func(id int64) CloseRequest {
				return CloseRequest{PositionID: id, Price: 1e9, Reason: domain.ExitSignal, At: t0.Add(time.Hour)}
			},
			wantErr: ports.ErrDataQuality,
		},
		{
			name: "unknown reason",
			ctx:  context.Background,
			req: func(id int64) CloseRequest {
				return CloseRequest{PositionID: id, Price: 101, Reason: "because", At: t0.Add(time.Hour)}
			},
			wantErr: ports.ErrInvariantViolation,
		},
		{
			name: "unknown position",
			ctx:  context.Background,
			req: func(id int64) CloseRequest {
				return CloseRequest{PositionID: id + 100, Price: 101, Reason: domain.ExitSignal, At: t0.Add(time.Hour)}
			},
			wantErr: ports.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Second)
			pos := h.open(t, strategy("rsi"), "ETHUSDT", 100)

			_, err := h.mgr.Close(tt.ctx(), tt.req(pos.ID))
			assert.ErrorIs(t, err, tt.wantErr)

			current, err := h.repo.FindPositionByID(context.Background(), pos.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusOpen, current.Status)

			count, err := h.repo.CountTrades(context.Background(), ports.TradeFilter{})
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestManager_ManualClose(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	pos := h.open(t, strategy("rsi"), "ETHUSDT", 100)

	trade, err := h.mgr.ManualClose(ctx, pos.ID, 102)
	require.NoError(t, err)
	assert.Equal(t, domain.ExitManual, trade.ExitReason)
	assert.InDelta(t, 4.0, trade.PNL, 1e-9)

	_, err = h.mgr.ManualClose(ctx, pos.ID, 103)
	assert.ErrorIs(t, err, ports.ErrContention)

	entries, err := h.repo.ListAudit(ctx, ports.AuditFilter{StrategyID: "rsi"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.SignalExit, entries[1].Signal)
	assert.Equal(t, "ETHUSDT", entries[1].Instrument)
	require.NotNil(t, entries[1].PositionID)
	assert.Equal(t, pos.ID, *entries[1].PositionID)
}

func TestManager_CloseRejectsBadPrice(t *testing.T) {
	tests := []struct {
		name  string
		price float64
	}{
		{name: "NaN", price: math.NaN()},
		{name: "positive infinity", price: math.Inf(1)},
		{name: "negative infinity", price: math.Inf(-1)},
		{name: "zero", price: 0},
		{name: "negative", price: -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Second)
			ctx := context.Background()
			pos := h.open(t, strategy("rsi"), "ETHUSDT", 100)

			var trade *domain.Trade
			var err error
			require.NotPanics(t, func() {
				trade, err = h.mgr.ManualClose(ctx, pos.ID, tt.price)
			})
			assert.ErrorIs(t, err, ports.ErrInvariantViolation)
			assert.Nil(t, trade)

			current, err := h.repo.FindPositionByID(ctx, pos.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusOpen, current.Status)

			entries, err := h.repo.ListAudit(ctx, ports.AuditFilter{StrategyID: "rsi"})
			require.NoError(t, err)
			assert.Len(t, entries, 1, "only the opening entry is written")

			// The position is still closable at a sane price.
			trade, err = h.mgr.ManualClose(ctx, pos.ID, 101)
			require.NoError(t, err)
			assert.InDelta(t, 2.0, trade.PNL, 1e-9)
		})
	}
}

func TestManager_ParallelPositionsDoNotInteract(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()

	var positions []*domain.Position
	for _, id := range []string{"a", "b", "c", "d"} {
		positions = append(positions, h.open(t, strategy(id), "ETHUSDT", 100))
	}

	var wg sync.WaitGroup
	for _, p := range positions {
		wg.Add(1)
		go func(p *domain.Position) {
			defer wg.Done()
			_, err := h.mgr.Close(ctx, CloseRequest{PositionID: p.ID, Price: 103, Reason: domain.ExitSignal, At: t0.Add(time.Hour)})
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	count, err := h.repo.CountTrades(ctx, ports.TradeFilter{})
	require.NoError(t, err)
	assert.Equal(t, len(positions), count)
	assert.Equal(t, 0, h.holds.Len())
}

func TestEvaluateExit(t *testing.T) {
	long := &domain.Position{Direction: domain.Long, EntryPrice: 100, StopLoss: domain.Float(95), TakeProfit: domain.Float(105), Status: domain.StatusOpen}
	short := &domain.Position{Direction: domain.Short, EntryPrice: 100, StopLoss: domain.Float(105), TakeProfit: domain.Float(95), Status: domain.StatusOpen}
	bare := &domain.Position{Direction: domain.Long, EntryPrice: 100, Status: domain.StatusOpen}
	closed := &domain.Position{Direction: domain.Long, EntryPrice: 100, StopLoss: domain.Float(95), Status: domain.StatusClosed}

	tests := []struct {
		name       string
		pos        *domain.Position
		price      float64
		exitSignal bool
		want       Decision
		wantOK     bool
	}{
		{name: "long inside band", pos: long, price: 101},
		{name: "long stop-loss at level", pos: long, price: 95, want: Decision{domain.ExitStopLoss, 95}, wantOK: true},
		{name: "long gap through stop-loss", pos: long, price: 94, want: Decision{domain.ExitStopLoss, 95}, wantOK: true},
		{name: "long take-profit", pos: long, price: 106, want: Decision{domain.ExitTakeProfit, 105}, wantOK: true},
		{name: "long stop-loss beats exit signal", pos: long, price: 90, exitSignal: true, want: Decision{domain.ExitStopLoss, 95}, wantOK: true},
		{name: "long exit signal at current price", pos: long, price: 102, exitSignal: true, want: Decision{domain.ExitSignal, 102}, wantOK: true},
		{name: "short stop-loss", pos: short, price: 107, want: Decision{domain.ExitStopLoss, 105}, wantOK: true},
		{name: "short take-profit", pos: short, price: 94, want: Decision{domain.ExitTakeProfit, 95}, wantOK: true},
		{name: "short inside band", pos: short, price: 99},
		{name: "no levels", pos: bare, price: 1},
		{name: "no levels with signal", pos: bare, price: 1, exitSignal: true, want: Decision{domain.ExitSignal, 1}, wantOK: true},
		{name: "closed position", pos: closed, price: 90, exitSignal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EvaluateExit(tt.pos, tt.price, tt.exitSignal)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
