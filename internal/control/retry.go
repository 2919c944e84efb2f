package control

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/upnp-cli/upnptoolkit/internal/netprobe"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// retryInvoke wraps adapter.Invoke in exponential backoff with jitter,
// retrying only the transient error subset of spec.md §7 (Timeout,
// NetworkUnreachable, HttpStatus 5xx/408, specific transient SOAP faults).
// A non-transient error is wrapped in backoff.Permanent so it stops the
// retry loop immediately instead of exhausting maxAttempts.
func retryInvoke(ctx context.Context, adapter Adapter, req Request, fetcher *netprobe.Fetcher, maxAttempts int) (Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.3

	return backoff.Retry(ctx, func() (Result, error) {
		result, err := adapter.Invoke(ctx, req, fetcher)
		if err == nil {
			return result, nil
		}

		upErr, ok := err.(*upnpmodel.Error)
		if !ok || !upErr.IsTransient() {
			return result, backoff.Permanent(err)
		}
		return result, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxAttempts)))
}
