package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kraklabs/drivedl/pkg/direrrors"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.MaxRetries = 1
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	return cfg
}

func TestFetchBlobReportsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	c := New(testConfig())
	var total int64
	data, err := c.FetchBlob(context.Background(), srv.URL, func(n int64) { total += n })
	if err != nil {
		t.Fatalf("FetchBlob: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("got %q", data)
	}
	if total != int64(len(data)) {
		t.Fatalf("progress total = %d, want %d", total, len(data))
	}
}

func TestFetchBlob404ClassifiesAsAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig())
	_, err := c.FetchBlob(context.Background(), srv.URL, nil)
	if !direrrors.IsAuthExpired(err) {
		t.Fatalf("expected AuthExpired, got %v (kind %v)", err, direrrors.ClassOf(err))
	}
}

func TestFetchBlobRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(testConfig())
	data, err := c.FetchBlob(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("FetchBlob: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("got %q", data)
	}
	if attempts != 2 {
		t.Fatalf("expected one transport-level retry (2 attempts), got %d", attempts)
	}
}

func TestFetchBlobNeverRetries404(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig())
	if _, err := c.FetchBlob(context.Background(), srv.URL, nil); !direrrors.IsAuthExpired(err) {
		t.Fatalf("expected AuthExpired, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for a 404 (no retry), got %d", attempts)
	}
}

func TestFetchJSONDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"More":true,"Blocks":[]}`))
	}))
	defer srv.Close()

	c := New(testConfig())
	var out struct {
		More   bool
		Blocks []any
	}
	if err := c.FetchJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("FetchJSON: %v", err)
	}
	if !out.More {
		t.Fatal("expected More=true decoded from body")
	}
}

func TestFetchBlobCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("too late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(testConfig())
	_, err := c.FetchBlob(ctx, srv.URL, nil)
	if err == nil {
		t.Fatal("expected an error for an already-canceled context")
	}
}
