package devicecache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertThenGetRoundTrips(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	device := upnpmodel.Device{
		UDN:          "uuid:test-1",
		IP:           "192.168.1.50",
		Port:         1400,
		FriendlyName: "Living Room",
		LastSeen:     time.Now().UTC().Truncate(time.Second),
	}
	if err := store.Upsert(ctx, device); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, found, err := store.Get(ctx, upnpmodel.IdentityOf(device))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatalf("expected device to be found")
	}
	if got.FriendlyName != device.FriendlyName {
		t.Fatalf("expected friendly name %q, got %q", device.FriendlyName, got.FriendlyName)
	}
}

func TestUpsertMergesRatherThanOverwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := upnpmodel.Device{UDN: "uuid:test-2", FriendlyName: "Bedroom", Manufacturer: "Sonos"}
	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert first: %v", err)
	}

	second := upnpmodel.Device{UDN: "uuid:test-2", ModelName: "Play:1"}
	if err := store.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert second: %v", err)
	}

	got, found, err := store.Get(ctx, upnpmodel.Identity{UDN: "uuid:test-2"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatalf("expected device to be found")
	}
	if got.FriendlyName != "Bedroom" || got.ModelName != "Play:1" {
		t.Fatalf("expected merged fields, got %+v", got)
	}
}

func TestGetMissingReturnsFalse(t *testing.T) {
	store := openTestStore(t)
	_, found, err := store.Get(context.Background(), upnpmodel.Identity{UDN: "uuid:missing"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatalf("expected missing device to not be found")
	}
}

func TestListFiltersByMaxAge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	fresh := upnpmodel.Device{UDN: "uuid:fresh", LastSeen: time.Now().UTC()}
	stale := upnpmodel.Device{UDN: "uuid:stale", LastSeen: time.Now().UTC().Add(-24 * time.Hour)}
	if err := store.Upsert(ctx, fresh); err != nil {
		t.Fatalf("Upsert fresh: %v", err)
	}
	if err := store.Upsert(ctx, stale); err != nil {
		t.Fatalf("Upsert stale: %v", err)
	}

	devices, err := store.List(ctx, time.Hour)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 1 || devices[0].UDN != "uuid:fresh" {
		t.Fatalf("expected only the fresh device, got %+v", devices)
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both devices with maxAge=0, got %d", len(all))
	}
}
