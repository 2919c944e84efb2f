package upnpmodel

import (
	"testing"
	"time"
)

func TestIdentityOfPrecedence(t *testing.T) {
	cases := []struct {
		name string
		d    Device
		want Identity
	}{
		{
			name: "UDN wins over everything",
			d:    Device{UDN: "uuid:abc", IP: "10.0.0.5", Port: 1400, Manufacturer: "Sonos"},
			want: Identity{UDN: "uuid:abc"},
		},
		{
			name: "IP+Port used when UDN absent",
			d:    Device{IP: "10.0.0.5", Port: 1400, Manufacturer: "Sonos"},
			want: Identity{IP: "10.0.0.5", Port: 1400},
		},
		{
			name: "manufacturer/model/friendlyName fallback",
			d:    Device{Manufacturer: "Sonos", ModelName: "One", FriendlyName: "Living Room"},
			want: Identity{Manufacturer: "Sonos", ModelName: "One", FriendlyName: "Living Room"},
		},
		{
			name: "IP without port falls through to name tuple",
			d:    Device{IP: "10.0.0.5", Manufacturer: "Sonos"},
			want: Identity{Manufacturer: "Sonos"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IdentityOf(c.d); got != c.want {
				t.Errorf("IdentityOf(%+v) = %+v, want %+v", c.d, got, c.want)
			}
		})
	}
}

func TestMergePrefersOtherNonZeroFields(t *testing.T) {
	existing := Device{
		IP:           "10.0.0.5",
		Port:         1400,
		Manufacturer: "Sonos",
		ModelName:    "",
		Services:     []Service{{ServiceType: "AVTransport"}},
	}
	other := Device{
		ModelName: "One",
		Services:  []Service{{ServiceType: "AVTransport"}, {ServiceType: "RenderingControl"}},
	}

	merged := Merge(existing, other)

	if merged.IP != "10.0.0.5" {
		t.Errorf("IP should be preserved from existing when other.IP is empty, got %q", merged.IP)
	}
	if merged.ModelName != "One" {
		t.Errorf("ModelName should take other's value, got %q", merged.ModelName)
	}
	if len(merged.Services) != 2 {
		t.Errorf("Services should be replaced by other's non-empty slice, got %d", len(merged.Services))
	}
}

func TestMergeDiscoveryMethodPrefersSSDP(t *testing.T) {
	cases := []struct {
		name     string
		existing DiscoveryMethod
		other    DiscoveryMethod
		want     DiscoveryMethod
	}{
		{"existing ssdp beats other port_scan", DiscoverySSDP, DiscoveryPortScan, DiscoverySSDP},
		{"other ssdp beats existing port_scan", DiscoveryPortScan, DiscoverySSDP, DiscoverySSDP},
		{"other port_scan wins when existing unset", DiscoveryUnknown, DiscoveryPortScan, DiscoveryPortScan},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			merged := Merge(Device{DiscoveryMethod: c.existing}, Device{DiscoveryMethod: c.other})
			if merged.DiscoveryMethod != c.want {
				t.Errorf("DiscoveryMethod = %q, want %q", merged.DiscoveryMethod, c.want)
			}
		})
	}
}

func TestMergeLastSeenTakesLatest(t *testing.T) {
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	merged := Merge(Device{LastSeen: earlier}, Device{LastSeen: later})
	if !merged.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", merged.LastSeen, later)
	}

	merged = Merge(Device{LastSeen: later}, Device{LastSeen: earlier})
	if !merged.LastSeen.Equal(later) {
		t.Errorf("LastSeen should not regress to an earlier value, got %v", merged.LastSeen)
	}
}

func TestMergeFirstSeenTakesEarliest(t *testing.T) {
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	merged := Merge(Device{FirstSeen: later}, Device{FirstSeen: earlier})
	if !merged.FirstSeen.Equal(earlier) {
		t.Errorf("FirstSeen = %v, want %v", merged.FirstSeen, earlier)
	}
}
