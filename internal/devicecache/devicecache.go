// Package devicecache is the persisted-device-cache collaborator named in
// spec.md §6: a small external store that lets a CLI invocation remember
// devices seen by a previous Discovery run instead of re-scanning the LAN
// every time. The core engines never depend on it for correctness, and no
// package in this module, cmd/upnpcli included, imports it.
package devicecache

import (
	"context"
	"time"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// Store is the persisted-device-cache contract. Implementations key records
// by upnpmodel.IdentityOf(device) and never mutate a Device's FirstSeen once
// written.
type Store interface {
	// Upsert inserts or merges device into the cache, per
	// upnpmodel.Merge's field-precedence rule when a record with the same
	// identity already exists.
	Upsert(ctx context.Context, device upnpmodel.Device) error
	// Get returns the cached record for identity, if any.
	Get(ctx context.Context, identity upnpmodel.Identity) (upnpmodel.Device, bool, error)
	// List returns every cached device last seen within maxAge of now. A
	// zero maxAge returns every cached device regardless of age.
	List(ctx context.Context, maxAge time.Duration) ([]upnpmodel.Device, error)
	// Close releases the store's underlying resources.
	Close() error
}
