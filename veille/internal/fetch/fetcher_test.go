package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchSuccess(t *testing.T) {
	// WHAT: A 200 response returns body and hash.
	// WHY: Happy path of the poll loop.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "torref/") {
			t.Errorf("user agent: %q", ua)
		}
		w.Write([]byte("<html>catalog</html>"))
	}))
	defer srv.Close()

	f := New(Config{MinHostDelay: time.Millisecond})
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(res.Body) != "<html>catalog</html>" {
		t.Errorf("body: %q", res.Body)
	}
	if res.Hash == "" || res.StatusCode != 200 {
		t.Errorf("result: %+v", res)
	}
}

func TestFetchNon2xxIsError(t *testing.T) {
	// WHAT: 404 and 500 both return errors with the status captured.
	// WHY: Callers classify these as network failures and back off.
	for _, code := range []int{404, 500, 503} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		f := New(Config{MinHostDelay: time.Millisecond})
		res, err := f.Fetch(context.Background(), srv.URL)
		srv.Close()
		if err == nil {
			t.Errorf("code %d: expected error", code)
			continue
		}
		if res == nil || res.StatusCode != code {
			t.Errorf("code %d: result %+v", code, res)
		}
	}
}

func TestFetchHostSpacing(t *testing.T) {
	// WHAT: Two requests to the same host are spaced by MinHostDelay;
	// a different host is not delayed by the first host's limiter.
	// WHY: The per-host minimum interval is the politeness contract.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	srvA := httptest.NewServer(handler)
	defer srvA.Close()
	srvB := httptest.NewServer(handler)
	defer srvB.Close()

	const delay = 120 * time.Millisecond
	f := New(Config{MinHostDelay: delay})
	ctx := context.Background()

	if _, err := f.Fetch(ctx, srvA.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	start := time.Now()
	if _, err := f.Fetch(ctx, srvA.URL); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay-10*time.Millisecond {
		t.Errorf("same-host spacing: %v, want >= %v", elapsed, delay)
	}

	// Exhaust host A's token again, then hit host B: no wait expected.
	go f.Fetch(ctx, srvA.URL)
	start = time.Now()
	if _, err := f.Fetch(ctx, srvB.URL); err != nil {
		t.Fatalf("host B fetch: %v", err)
	}
	if elapsed := time.Since(start); elapsed > delay {
		t.Errorf("cross-host delay leaked: %v", elapsed)
	}
}

func TestFetchCancellationDuringWait(t *testing.T) {
	// WHAT: Cancelling the context aborts the rate-limit wait promptly.
	// WHY: Shutdown must not hang on an artificial delay.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{MinHostDelay: 10 * time.Second})
	ctx := context.Background()
	if _, err := f.Fetch(ctx, srv.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(cancelCtx, srv.URL)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected cancellation error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not observe cancellation")
	}
}

func TestFetchURLValidator(t *testing.T) {
	// WHAT: A rejecting validator blocks the request before any I/O.
	// WHY: The validator hook is the SSRF guard.
	blocked := errors.New("blocked")
	f := New(Config{
		MinHostDelay: time.Millisecond,
		URLValidator: func(string) error { return blocked },
	})
	_, err := f.Fetch(context.Background(), "http://169.254.169.254/meta")
	if !errors.Is(err, blocked) {
		t.Errorf("err: %v", err)
	}
}
