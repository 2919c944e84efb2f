package netprobe

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// userAgents is the rotating pool stealth mode draws from.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:89.0) Gecko/20100101 Firefox/89.0",
}

// StealthMinDelay and StealthMaxDelay bound the jitter applied before every
// stealth-mode request, matching config.STEALTH_MIN_DELAY/STEALTH_MAX_DELAY.
const (
	StealthMinDelay = 50 * time.Millisecond
	StealthMaxDelay = 400 * time.Millisecond
)

// FetcherOptions configures an HTTP fetch: overall timeout, TLS
// verification toggle, and stealth mode (rotating user-agent + jitter,
// serialized per host).
type FetcherOptions struct {
	Timeout    time.Duration
	VerifyTLS  bool
	Stealth    bool
}

// Fetcher issues HTTP GET/POST requests with configurable timeout, TLS
// toggle, and rotating request-identity stealth mode. One Fetcher is shared
// across a whole discovery or control call so its per-host mutex set
// actually serializes stealth requests to the same host.
type Fetcher struct {
	mu       sync.Mutex
	hostLock map[string]*sync.Mutex
}

// NewFetcher returns a Fetcher ready for concurrent use.
func NewFetcher() *Fetcher {
	return &Fetcher{hostLock: make(map[string]*sync.Mutex)}
}

func (f *Fetcher) lockFor(hostPort string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.hostLock[hostPort]
	if !ok {
		l = &sync.Mutex{}
		f.hostLock[hostPort] = l
	}
	return l
}

func (f *Fetcher) client(opts FetcherOptions) *http.Client {
	transport := &http.Transport{}
	if !opts.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: transport, Timeout: opts.Timeout}
}

// Get performs a stealth-aware GET, returning the response body and any
// Server header seen. hostPort is used only to key the stealth serialization
// mutex, not to override the URL's own host.
func (f *Fetcher) Get(ctx context.Context, rawURL, hostPort string, opts FetcherOptions) ([]byte, string, error) {
	return f.do(ctx, http.MethodGet, rawURL, nil, "", hostPort, opts)
}

// Post performs a stealth-aware POST with the given body and content type.
func (f *Fetcher) Post(ctx context.Context, rawURL string, body []byte, contentType, hostPort string, opts FetcherOptions) ([]byte, string, error) {
	return f.do(ctx, http.MethodPost, rawURL, body, contentType, hostPort, opts)
}

// Do performs a stealth-aware request with caller-supplied extra headers
// (used by the Control Engine's SOAPAction header).
func (f *Fetcher) Do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string, hostPort string, opts FetcherOptions) (int, []byte, http.Header, error) {
	if opts.Stealth {
		lock := f.lockFor(hostPort)
		lock.Lock()
		defer lock.Unlock()
		if err := sleepJitter(ctx); err != nil {
			return 0, nil, nil, err
		}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return 0, nil, nil, &upnpmodel.Error{Kind: upnpmodel.KindInvalidArgument, Message: "building request", Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if opts.Stealth {
		req.Header.Set("User-Agent", pickUserAgent())
		req.Header.Set("Accept", "*/*")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Cache-Control", "no-cache")
	}

	client := f.client(opts)
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, nil, &upnpmodel.Error{Kind: upnpmodel.KindCanceled, Err: ctx.Err()}
		}
		return 0, nil, nil, classifyDoError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, resp.Header, &upnpmodel.Error{Kind: upnpmodel.KindTimeout, Message: "reading response body", Err: err}
	}

	return resp.StatusCode, data, resp.Header, nil
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string, body []byte, contentType, hostPort string, opts FetcherOptions) ([]byte, string, error) {
	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	status, data, respHeaders, err := f.Do(ctx, method, rawURL, body, headers, hostPort, opts)
	if err != nil {
		return nil, "", err
	}
	if status != http.StatusOK {
		return nil, respHeaders.Get("Server"), &upnpmodel.Error{Kind: upnpmodel.KindHttpStatus, Code: status, Message: rawURL}
	}
	return data, respHeaders.Get("Server"), nil
}

func pickUserAgent() string {
	return userAgents[rand.IntN(len(userAgents))]
}

func sleepJitter(ctx context.Context) error {
	delta := StealthMaxDelay - StealthMinDelay
	jitter := StealthMinDelay + time.Duration(rand.Int64N(int64(delta)))
	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return &upnpmodel.Error{Kind: upnpmodel.KindCanceled, Err: ctx.Err()}
	}
}

func classifyDoError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &upnpmodel.Error{Kind: upnpmodel.KindTimeout, Message: "http request timed out", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &upnpmodel.Error{Kind: upnpmodel.KindTimeout, Message: "http request timed out", Err: err}
	}
	return &upnpmodel.Error{Kind: upnpmodel.KindNetworkUnreachable, Message: "http request failed", Err: err}
}
