package netprobe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

func TestDoReturnsStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "test-device/1.0")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	fetcher := NewFetcher()
	status, body, headers, err := fetcher.Do(context.Background(), "GET", server.URL, nil, nil, "irrelevant", FetcherOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}
	if headers.Get("Server") != "test-device/1.0" {
		t.Errorf("Server header = %q", headers.Get("Server"))
	}
}

func TestDoNonOKStatusStillReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("fault"))
	}))
	defer server.Close()

	fetcher := NewFetcher()
	status, body, _, err := fetcher.Do(context.Background(), "POST", server.URL, []byte("req"), nil, "irrelevant", FetcherOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Do should not itself error on a non-200 status: %v", err)
	}
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", status)
	}
	if string(body) != "fault" {
		t.Errorf("body = %q, want the fault body preserved for the caller to parse", body)
	}
}

func TestDoCanceledContextClassifiesAsCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := NewFetcher()
	_, _, _, err := fetcher.Do(ctx, "GET", server.URL, nil, nil, "irrelevant", FetcherOptions{Timeout: 2 * time.Second})
	if err == nil {
		t.Fatal("expected an error for a canceled context")
	}
	upErr, ok := err.(*upnpmodel.Error)
	if !ok {
		t.Fatalf("expected *upnpmodel.Error, got %T", err)
	}
	if upErr.Kind != upnpmodel.KindCanceled {
		t.Errorf("Kind = %s, want Canceled", upErr.Kind)
	}
}

func TestClassifyDoErrorDistinguishesTimeout(t *testing.T) {
	timeoutErr := &timeoutNetError{}
	classified := classifyDoError(timeoutErr)
	upErr, ok := classified.(*upnpmodel.Error)
	if !ok {
		t.Fatalf("expected *upnpmodel.Error, got %T", classified)
	}
	if upErr.Kind != upnpmodel.KindTimeout {
		t.Errorf("Kind = %s, want Timeout for a net.Error with Timeout()==true", upErr.Kind)
	}
}

func TestClassifyDoErrorDefaultsToNetworkUnreachable(t *testing.T) {
	classified := classifyDoError(errors.New("connection refused"))
	upErr, ok := classified.(*upnpmodel.Error)
	if !ok {
		t.Fatalf("expected *upnpmodel.Error, got %T", classified)
	}
	if upErr.Kind != upnpmodel.KindNetworkUnreachable {
		t.Errorf("Kind = %s, want NetworkUnreachable for a non-timeout error", upErr.Kind)
	}
}

func TestClassifyDoErrorDeadlineExceeded(t *testing.T) {
	classified := classifyDoError(context.DeadlineExceeded)
	upErr, ok := classified.(*upnpmodel.Error)
	if !ok {
		t.Fatalf("expected *upnpmodel.Error, got %T", classified)
	}
	if upErr.Kind != upnpmodel.KindTimeout {
		t.Errorf("Kind = %s, want Timeout for context.DeadlineExceeded", upErr.Kind)
	}
}

// timeoutNetError implements net.Error with Timeout()==true, standing in
// for the timeout errors http.Client.Do actually returns (net.OpError,
// url.Error wrapping one, etc.) without depending on triggering a real
// socket timeout.
type timeoutNetError struct{}

func (e *timeoutNetError) Error() string   { return "i/o timeout" }
func (e *timeoutNetError) Timeout() bool   { return true }
func (e *timeoutNetError) Temporary() bool { return true }
