package session

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPProber_StatusOKIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		_, _ = w.Write([]byte("<html>switch</html>"))
	}))
	defer srv.Close()

	p := NewHTTPProber()
	if !p.Probe(context.Background(), srv.URL+"/") {
		t.Fatalf("expected 200 to be reachable")
	}
}

func TestHTTPProber_NonOKIsUnreachable(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusUnauthorized, http.StatusNoContent} {
		code := code
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		p := NewHTTPProber()
		if p.Probe(context.Background(), srv.URL+"/") {
			t.Fatalf("expected status %d to be unreachable", code)
		}
		srv.Close()
	}
}

func TestHTTPProber_RetriesTransientStatusOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProber(WithRetryBackoff(time.Millisecond))
	if !p.Probe(context.Background(), srv.URL+"/") {
		t.Fatalf("expected retry after 503 to succeed")
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestHTTPProber_PersistentTransientStatusGivesUp(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProber(WithRetryBackoff(time.Millisecond))
	if p.Probe(context.Background(), srv.URL+"/") {
		t.Fatalf("expected repeated 502 to be unreachable")
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected exactly one retry (2 requests), got %d", got)
	}
}

func TestHTTPProber_RefusedConnectionIsUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	p := NewHTTPProber()
	start := time.Now()
	if p.Probe(context.Background(), "http://"+addr+"/") {
		t.Fatalf("expected refused connection to be unreachable")
	}
	if elapsed := time.Since(start); elapsed > DefaultProbeTimeout+500*time.Millisecond {
		t.Fatalf("expected probe bounded by timeout, took %s", elapsed)
	}
}

func TestHTTPProber_SlowServerTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewHTTPProber(WithProbeTimeout(100 * time.Millisecond))
	start := time.Now()
	if p.Probe(context.Background(), srv.URL+"/") {
		t.Fatalf("expected slow server to be unreachable")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected probe to honor its timeout, took %s", elapsed)
	}
}

func TestHTTPProber_MalformedURLIsUnreachable(t *testing.T) {
	p := NewHTTPProber()
	if p.Probe(context.Background(), "http://[::1") {
		t.Fatalf("expected malformed url to be unreachable")
	}
}

func TestHTTPProber_ContextDeadlineOverridesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewHTTPProber(WithProbeTimeout(50 * time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !p.Probe(ctx, srv.URL+"/") {
		t.Fatalf("expected the context deadline to replace the shorter configured timeout")
	}
}

func TestSessionProbe_HonorsTimeoutLongerThanDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(400 * time.Millisecond)
	}))
	defer srv.Close()

	m := NewManager(Options{Launcher: &fakeLauncher{}, ProbeTimeout: 100 * time.Millisecond})
	s := m.GetOrCreate("slow", srv.URL)

	results := make(chan bool, 1)
	s.Probe(3*time.Second, func(ok bool) { results <- ok })
	select {
	case ok := <-results:
		if !ok {
			t.Fatalf("expected reachable within the requested 3s bound")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for result")
	}
}

func TestSessionProbe_DefaultTimeoutStillBounds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(400 * time.Millisecond)
	}))
	defer srv.Close()

	m := NewManager(Options{Launcher: &fakeLauncher{}, ProbeTimeout: 100 * time.Millisecond})
	s := m.GetOrCreate("slow", srv.URL)

	results := make(chan bool, 1)
	s.Probe(0, func(ok bool) { results <- ok })
	select {
	case ok := <-results:
		if ok {
			t.Fatalf("expected the 100ms manager default to cut off a 400ms response")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for result")
	}
}
