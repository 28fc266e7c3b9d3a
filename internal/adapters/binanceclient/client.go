// Package binanceclient implements ports.BarSource on the public Binance
// USDⓈ-M futures market data endpoints. It never places orders.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	maxKlinesPerRequest = 1500
	maxReconnectDelay   = time.Minute
)

// Client implements ports.BarSource using the go-binance library.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

var _ ports.BarSource = (*Client)(nil)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // First reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Consecutive failed attempts before giving up
}

// New creates a new Binance market data adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	// Public market data only, so no API keys.
	client := futures.NewClient("", "")
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		futures.UseTestnet = true
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance market data client configured", map[string]interface{}{"baseURL": client.BaseURL})

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// classifyError translates Binance and transport errors into ports errors.
func classifyError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003, -1015: // Too many requests / orders
			return ports.ErrRateLimited
		case -1000, -1001: // Unknown / disconnected
			return ports.ErrConnectionFailed
		case -1007, -1021: // Backend timeout / timestamp outside recvWindow
			return ports.ErrTimeout
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1121, -1125, -1127, -1128, -1130:
			return ports.ErrInvalidRequest
		case -1022, -2014, -2015: // Signature / API key problems
			return ports.ErrConfigurationError
		default:
			return ports.ErrUnknown
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		return ports.ErrContextCanceled
	}
	msg := err.Error()
	if strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "i/o timeout") {
		return ports.ErrConnectionFailed
	}
	return ports.ErrUnknown
}

// handleError wraps err with its ports classification and logs it.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
	}

	mapped := classifyError(err)
	if errors.Is(mapped, ports.ErrContextCanceled) {
		c.logger.Debug(ctx, operation+" canceled", fields)
	} else {
		c.logger.Error(ctx, err, operation+" failed", fields)
	}
	return fmt.Errorf("%s failed: %w: %w", operation, mapped, err)
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// History retrieves the latest limit closed bars of instrument.
func (c *Client) History(ctx context.Context, instrument, timeframe string, limit int) ([]*domain.Bar, error) {
	op := "History"
	if limit <= 0 || limit > maxKlinesPerRequest {
		limit = maxKlinesPerRequest
	}
	klines, err := c.futuresClient.NewKlinesService().Symbol(instrument).Interval(timeframe).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	bars := make([]*domain.Bar, 0, len(klines))
	now := time.Now()
	for _, k := range klines {
		bar, err := translateKline(k, instrument, timeframe)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrInvalidBar, err), op)
		}
		// The last kline of a plain history request may still be forming.
		if bar.CloseTime.After(now) {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// HistoryRange fetches every bar of instrument with an open time in [start, end].
func (c *Client) HistoryRange(ctx context.Context, instrument, timeframe string, start, end time.Time) ([]*domain.Bar, error) {
	op := "HistoryRange"
	var bars []*domain.Bar
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(instrument).
			Interval(timeframe).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlinesPerRequest).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			bar, err := translateKline(k, instrument, timeframe)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrInvalidBar, err), op)
			}
			bars = append(bars, bar)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxKlinesPerRequest {
			break
		}
	}

	c.logger.Debug(ctx, op+" complete", map[string]interface{}{"instrument": instrument, "timeframe": timeframe, "bars": len(bars)})
	return bars, nil
}

// Stream starts a kline WebSocket stream for instrument and keeps it alive,
// reconnecting with exponential backoff. doneCh closes when the stream stops
// for good; sending on (or closing) stopCh stops it.
func (c *Client) Stream(ctx context.Context, instrument, timeframe string, handler func(*domain.Bar), errHandler func(error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "Stream"
	if handler == nil {
		return nil, nil, fmt.Errorf("%w: stream handler is required", ports.ErrInvalidRequest)
	}
	if errHandler == nil {
		errHandler = func(error) {}
	}
	fields := map[string]interface{}{"instrument": instrument, "timeframe": timeframe}
	wsCtx, cancelWs := context.WithCancel(ctx)

	onKline := func(event *futures.WsKlineEvent) {
		bar, err := translateWsKline(event)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": failed to translate kline event", fields)
			return
		}
		handler(bar)
	}
	onError := func(err error) {
		errHandler(c.handleError(wsCtx, err, op+" websocket"))
	}

	doneCh = make(chan struct{})
	stopCh = make(chan struct{}, 1)

	go func() {
		defer close(doneCh)
		defer cancelWs()

		b := &backoff.Backoff{Min: c.reconnectDelay, Max: maxReconnectDelay, Factor: 2, Jitter: true}
		for {
			if wsCtx.Err() != nil {
				c.logger.Info(wsCtx, op+": context done, stream stopped", fields)
				return
			}

			innerDone, innerStop, connectErr := futures.WsKlineServe(instrument, timeframe, onKline, onError)
			if connectErr != nil {
				wrapped := c.handleError(wsCtx, connectErr, op+" connect")
				if int(b.Attempt())+1 >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": max reconnection attempts exceeded, giving up", fields)
					errHandler(wrapped)
					return
				}
				delay := b.Duration()
				c.logger.Warn(wsCtx, op+": connection failed, retrying", map[string]interface{}{
					"instrument": instrument,
					"timeframe":  timeframe,
					"attempt":    b.Attempt(),
					"delay":      delay.String(),
				})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": websocket connected", fields)
			b.Reset()

			select {
			case <-innerDone:
				c.logger.Warn(wsCtx, op+": websocket closed, reconnecting", fields)
			case <-wsCtx.Done():
				close(innerStop)
				<-innerDone
				c.logger.Info(wsCtx, op+": websocket stopped", fields)
				return
			}
		}
	}()

	go func() {
		select {
		case <-stopCh:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	return doneCh, stopCh, nil
}

// --- Translation Helpers ---

func translateWsKline(event *futures.WsKlineEvent) (*domain.Bar, error) {
	if event == nil {
		return nil, errors.New("received nil kline event")
	}
	k := event.Kline
	bar, err := parseOHLCV(k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return nil, err
	}
	bar.Instrument = k.Symbol
	bar.Timeframe = k.Interval
	bar.OpenTime = time.UnixMilli(k.StartTime).UTC()
	bar.CloseTime = time.UnixMilli(k.EndTime).UTC()
	bar.IsFinal = k.IsFinal
	return bar, nil
}

func translateKline(k *futures.Kline, instrument, timeframe string) (*domain.Bar, error) {
	if k == nil {
		return nil, errors.New("received nil historical kline")
	}
	bar, err := parseOHLCV(k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return nil, err
	}
	bar.Instrument = instrument // Not part of futures.Kline
	bar.Timeframe = timeframe
	bar.OpenTime = time.UnixMilli(k.OpenTime).UTC()
	bar.CloseTime = time.UnixMilli(k.CloseTime).UTC()
	bar.IsFinal = true // Historical klines are closed
	return bar, nil
}

func parseOHLCV(open, high, low, cls, volume string) (*domain.Bar, error) {
	var bar domain.Bar
	for _, f := range []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", open, &bar.Open},
		{"high", high, &bar.High},
		{"low", low, &bar.Low},
		{"close", cls, &bar.Close},
		{"volume", volume, &bar.Volume},
	} {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s '%s': %w", f.name, f.raw, err)
		}
		*f.dst = v
	}
	return &bar, nil
}
