// Package testserver implements the Test Callback Server & Event Watcher
// (C9): an ephemeral HTTP sink with one-shot per-path registration, plus a
// typed watcher over the UI event emitter. Both exist purely to support the
// integration test harness (§4.9).
package testserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	maxBodyBytes   = 32 * 1024
	responseWindow = 10 * time.Second
)

var (
	ErrPathAlreadyRegistered = errors.New("path already has an active registration")
	ErrUnknownPath           = errors.New("no registration for this path")
)

// Response is what a waiter hands back to the live HTTP request (§4.9's
// "respond(status, body, headers)").
type Response struct {
	Status  int
	Body    []byte
	Headers map[string]string
}

// rawIncoming is one delivered request, still undecoded; WaitHandle's type
// parameter decides how to interpret Body.
type rawIncoming struct {
	body    []byte
	respond chan Response
}

type registration struct {
	ch       chan rawIncoming
	consumed bool
}

// Server is the ephemeral HTTP sink. Zero value is not usable; construct
// with New.
type Server struct {
	mu       sync.Mutex
	pending  map[string]*registration
	listener net.Listener
	http     *http.Server
	log      *zap.Logger
}

// New binds a listener on an ephemeral local port and starts serving.
func New(log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.L()
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{pending: make(map[string]*registration), listener: listener, log: log}
	s.http = &http.Server{Handler: http.HandlerFunc(s.serveHTTP)}
	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("testserver: serve loop exited with error", zap.Error(err))
		}
	}()
	return s, nil
}

// URL is the base address callers configure as their validation/
// confirmation/result URL, e.g. URL()+"/stkpush-callback".
func (s *Server) URL() string { return "http://" + s.listener.Addr().String() }

func (s *Server) Close(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, responseWindow)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// claim registers path, replacing a closed-but-uncollected prior
// registration but rejecting one still active (§4.9).
func (s *Server) claim(path string) (chan rawIncoming, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pending[path]; ok && !existing.consumed {
		return nil, ErrPathAlreadyRegistered
	}
	ch := make(chan rawIncoming, 1)
	s.pending[path] = &registration{ch: ch}
	return ch, nil
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	reg, ok := s.pending[r.URL.Path]
	if ok {
		reg.consumed = true
	}
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	respond := make(chan Response, 1)
	reg.ch <- rawIncoming{body: body, respond: respond}

	select {
	case resp := <-respond:
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if len(resp.Body) > 0 {
			w.Write(resp.Body)
		}
	case <-time.After(responseWindow):
		// The waiter was dropped (test step finished) without responding.
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
		w.WriteHeader(http.StatusNoContent)
	}
}

// Exchange is the decoded request handed to a waiter, plus its responder.
type Exchange[T any] struct {
	Payload T
	respond chan Response
}

// Respond plumbs the response back to the live HTTP handler; it may be
// called at most once.
func (e *Exchange[T]) Respond(status int, body []byte, headers map[string]string) {
	e.respond <- Response{Status: status, Body: body, Headers: headers}
}

// WaitHandle is returned by Register; callers await Recv with their own
// deadline (§4.9 leaves the deadline to the test step).
type WaitHandle[T any] struct {
	raw chan rawIncoming
}

// Recv blocks until a request lands on the registered path or ctx is done.
// A JSON-unmarshal failure still unblocks the live HTTP request with 400
// before returning the error to the caller.
func (w WaitHandle[T]) Recv(ctx context.Context) (*Exchange[T], error) {
	select {
	case inc := <-w.raw:
		var payload T
		if err := json.Unmarshal(inc.body, &payload); err != nil {
			inc.respond <- Response{Status: http.StatusBadRequest}
			return nil, err
		}
		return &Exchange[T]{Payload: payload, respond: inc.respond}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Register claims path for one incoming request, typed as T (§4.9).
func Register[T any](s *Server, path string) (WaitHandle[T], error) {
	ch, err := s.claim(path)
	if err != nil {
		return WaitHandle[T]{}, err
	}
	return WaitHandle[T]{raw: ch}, nil
}
