// Package upnpmodel holds the data types shared by every engine: devices,
// services, SCPD documents, action inventories, profiles, and the uniform
// error type returned across discovery, profiling, and control.
package upnpmodel

import "time"

// DiscoveryMethod records how a Device was first observed.
type DiscoveryMethod string

const (
	DiscoverySSDP      DiscoveryMethod = "ssdp"
	DiscoveryPortScan  DiscoveryMethod = "port_scan"
	DiscoveryUnknown   DiscoveryMethod = ""
)

// Device is a single UPnP/DLNA/DIAL endpoint on the LAN.
//
// Identity is UDN when present, otherwise (IP, Port), otherwise
// (Manufacturer, ModelName, FriendlyName). Two records that resolve to the
// same identity must be merged via Merge.
type Device struct {
	IP               string
	Port             int
	UDN              string
	FriendlyName     string
	Manufacturer     string
	ModelName        string
	ModelNumber      string
	DeviceType       string
	DescriptionURL   string
	ServerHeader     string
	DiscoveryMethod  DiscoveryMethod
	FirstSeen        time.Time
	LastSeen         time.Time
	Services         []Service
	MacAddress       string
	MacVendor        string
	RawSSDPHeaders   map[string]string
}

// Service describes one UPnP service exposed by a Device.
type Service struct {
	ServiceType  string
	ServiceID    string
	ControlURL   string
	EventSubURL  string
	SCPDURL      string
}

// Identity is the key used for deduplication and cache lookups.
type Identity struct {
	UDN          string
	IP           string
	Port         int
	Manufacturer string
	ModelName    string
	FriendlyName string
}

// IdentityOf computes the identity tuple for a Device per the precedence
// rule: UDN, then (IP, Port), then (Manufacturer, ModelName, FriendlyName).
func IdentityOf(d Device) Identity {
	if d.UDN != "" {
		return Identity{UDN: d.UDN}
	}
	if d.IP != "" && d.Port != 0 {
		return Identity{IP: d.IP, Port: d.Port}
	}
	return Identity{Manufacturer: d.Manufacturer, ModelName: d.ModelName, FriendlyName: d.FriendlyName}
}

// Merge combines two records that resolve to the same identity. Later data
// (other) wins per field except DiscoveryMethod, which prefers "ssdp" over
// "port_scan".
func Merge(existing, other Device) Device {
	merged := existing

	if other.UDN != "" {
		merged.UDN = other.UDN
	}
	if other.IP != "" {
		merged.IP = other.IP
	}
	if other.Port != 0 {
		merged.Port = other.Port
	}
	if other.FriendlyName != "" {
		merged.FriendlyName = other.FriendlyName
	}
	if other.Manufacturer != "" {
		merged.Manufacturer = other.Manufacturer
	}
	if other.ModelName != "" {
		merged.ModelName = other.ModelName
	}
	if other.ModelNumber != "" {
		merged.ModelNumber = other.ModelNumber
	}
	if other.DeviceType != "" {
		merged.DeviceType = other.DeviceType
	}
	if other.DescriptionURL != "" {
		merged.DescriptionURL = other.DescriptionURL
	}
	if other.ServerHeader != "" {
		merged.ServerHeader = other.ServerHeader
	}
	if other.MacAddress != "" {
		merged.MacAddress = other.MacAddress
	}
	if other.MacVendor != "" {
		merged.MacVendor = other.MacVendor
	}
	if len(other.Services) > 0 {
		merged.Services = other.Services
	}
	if other.RawSSDPHeaders != nil {
		merged.RawSSDPHeaders = other.RawSSDPHeaders
	}

	// discovery_method: ssdp wins over port_scan.
	switch {
	case existing.DiscoveryMethod == DiscoverySSDP:
		merged.DiscoveryMethod = DiscoverySSDP
	case other.DiscoveryMethod == DiscoverySSDP:
		merged.DiscoveryMethod = DiscoverySSDP
	case other.DiscoveryMethod != "":
		merged.DiscoveryMethod = other.DiscoveryMethod
	}

	if other.LastSeen.After(merged.LastSeen) {
		merged.LastSeen = other.LastSeen
	}
	if merged.FirstSeen.IsZero() || (!other.FirstSeen.IsZero() && other.FirstSeen.Before(merged.FirstSeen)) {
		if !other.FirstSeen.IsZero() {
			merged.FirstSeen = other.FirstSeen
		}
	}

	return merged
}
