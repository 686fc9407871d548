package callback_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/callback"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
)

type fakeStore struct {
	status models.CallbackDeliveryStatus
	code   int
	body   string
}

func (f *fakeStore) InsertCallbackLog(ctx context.Context, l *models.CallbackLog) error { return nil }

func (f *fakeStore) UpdateCallbackLog(ctx context.Context, id string, status models.CallbackDeliveryStatus, code int, body string) error {
	f.status, f.code, f.body = status, code, body
	return nil
}

func noSleep(ctx context.Context, d time.Duration) {}

func TestDeliver_SucceedsOnFirstAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fs := &fakeStore{}
	d := callback.New(fs, nil).WithClock(noSleep)
	d.Deliver(context.Background(), callback.Request{CallbackLogID: "cb-1", URL: srv.URL, Payload: []byte(`{}`)})

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly 1 hit, got %d", hits)
	}
	if fs.status != models.CallbackDelivered {
		t.Fatalf("expected delivered, got %s", fs.status)
	}
}

func TestDeliver_ExhaustsRetriesThenFails(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fs := &fakeStore{}
	d := callback.New(fs, nil).WithClock(noSleep)
	d.Deliver(context.Background(), callback.Request{CallbackLogID: "cb-2", URL: srv.URL, Payload: []byte(`{}`)})

	if atomic.LoadInt32(&hits) != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", hits)
	}
	if fs.status != models.CallbackFailed {
		t.Fatalf("expected failed, got %s", fs.status)
	}
	if fs.code != http.StatusInternalServerError {
		t.Fatalf("expected last response code recorded, got %d", fs.code)
	}
}

func TestDeliver_SucceedsOnThirdAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fs := &fakeStore{}
	d := callback.New(fs, nil).WithClock(noSleep)
	d.Deliver(context.Background(), callback.Request{CallbackLogID: "cb-3", URL: srv.URL, Payload: []byte(`{}`)})

	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", hits)
	}
	if fs.status != models.CallbackDelivered {
		t.Fatalf("expected delivered, got %s", fs.status)
	}
}

func TestDeliver_AbandonsOnContextCancel(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := &fakeStore{}
	d := callback.New(fs, nil).WithClock(noSleep)
	d.Deliver(ctx, callback.Request{CallbackLogID: "cb-4", URL: srv.URL, Payload: []byte(`{}`)})

	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no attempts after cancellation, got %d", hits)
	}
	if fs.status != models.CallbackFailed {
		t.Fatalf("expected failed status recorded even with zero attempts, got %s", fs.status)
	}
}
