// Package callback implements best-effort callback delivery (C6): up to 4
// POST attempts to a caller-supplied URL with exponential backoff and
// jitter, every attempt logged to the CallbackLog (§4.6).
package callback

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
)

const (
	maxAttempts      = 4
	maxJitterMillis  = 500
	responseBodyCap  = 8 * 1024
)

// Delivery owns the HTTP client and store used to post callback payloads.
type Delivery struct {
	client *http.Client
	store  store.CallbackLogStore
	log    *zap.Logger

	// sleep is swappable in tests so they don't wait real seconds.
	sleep func(ctx context.Context, d time.Duration)
}

func New(store store.CallbackLogStore, log *zap.Logger) *Delivery {
	if log == nil {
		log = zap.L()
	}
	return &Delivery{
		client: &http.Client{Timeout: 10 * time.Second},
		store:  store,
		log:    log,
		sleep:  defaultSleep,
	}
}

// WithClock lets tests replace the inter-attempt sleep so the 4-attempt
// backoff loop doesn't take real wall-clock seconds.
func (d *Delivery) WithClock(sleep func(ctx context.Context, delay time.Duration)) *Delivery {
	d.sleep = sleep
	return d
}

func defaultSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Request describes one callback to deliver; CallbackLog is persisted by
// the caller before Deliver is invoked so its Id can be threaded through.
type Request struct {
	CallbackLogID string
	URL           string
	Payload       []byte
}

// Deliver runs the attempt loop described in §4.6. It is meant to be called
// from a detached goroutine; the API caller never awaits it (§4.5).
func (d *Delivery) Deliver(ctx context.Context, req Request) {
	var lastCode int
	var lastBody string
	delivered := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		backoff := time.Duration(1<<uint(attempt))*time.Second + jitter()
		d.sleep(ctx, backoff)
		if ctx.Err() != nil {
			d.log.Warn("callback delivery abandoned: context cancelled", zap.String("url", req.URL))
			break
		}

		code, body, err := d.attempt(ctx, req.URL, req.Payload)
		lastCode, lastBody = code, body
		if err != nil {
			d.log.Warn("callback attempt failed", zap.Int("attempt", attempt), zap.String("url", req.URL), zap.Error(err))
			continue
		}
		if code >= 200 && code < 300 {
			delivered = true
			d.log.Info("callback delivered", zap.Int("attempt", attempt), zap.String("url", req.URL), zap.Int("status", code))
			break
		}
		d.log.Warn("callback attempt rejected", zap.Int("attempt", attempt), zap.String("url", req.URL), zap.Int("status", code))
	}

	status := models.CallbackFailed
	if delivered {
		status = models.CallbackDelivered
	}
	if err := d.store.UpdateCallbackLog(context.Background(), req.CallbackLogID, status, lastCode, lastBody); err != nil {
		d.log.Error("failed to persist callback delivery outcome", zap.Error(err))
	}
}

func (d *Delivery) attempt(ctx context.Context, url string, payload []byte) (int, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyCap))
	return resp.StatusCode, string(body), nil
}

func jitter() time.Duration {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	n := binary.BigEndian.Uint16(b[:]) % maxJitterMillis
	return time.Duration(n) * time.Millisecond
}
