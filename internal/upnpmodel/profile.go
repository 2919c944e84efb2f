package upnpmodel

// MatchCriteria lists substrings to match against a Device's fields. Each
// list entry is a case-insensitive substring; a field contributes to the
// match score if at least one of its substrings is found.
type MatchCriteria struct {
	Manufacturer []string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	ModelName    []string `json:"modelName,omitempty" yaml:"modelName,omitempty"`
	DeviceType   []string `json:"deviceType,omitempty" yaml:"deviceType,omitempty"`
	ServerHeader []string `json:"serverHeader,omitempty" yaml:"serverHeader,omitempty"`
}

// Endpoint is one protocol-specific endpoint template. Port is the port the
// sibling protocol listens on; fields in Extra carry {PLACEHOLDER}-style
// templated paths and commands, keyed by the name the profile file used.
type Endpoint struct {
	Port  int               `json:"port,omitempty" yaml:"port,omitempty"`
	Extra map[string]string `json:"-" yaml:"-"`
}

// DeviceProfile is a declarative record describing a device family's
// non-UPnP sibling protocols, loaded from an external profile file.
type DeviceProfile struct {
	Name      string
	Match     MatchCriteria
	UPnP      map[string]UPnPServiceHint
	ECP       *Endpoint
	WAM       *Endpoint
	Cast      *Endpoint
	HEOS      *Endpoint
	MusicCast *Endpoint
	JSONRPC   *Endpoint
	SoundTouch *Endpoint
	Notes     string

	// IsGenericFallback marks the single profile that matches any device
	// exposing a MediaRenderer service with score 1, per spec.md §3.
	IsGenericFallback bool
}

// UPnPServiceHint names a service's control URL directly, for profiles that
// pin a literal UPnP control endpoint rather than relying on the device's
// own description.
type UPnPServiceHint struct {
	ServiceType string `json:"serviceType" yaml:"serviceType"`
	ControlURL  string `json:"controlURL" yaml:"controlURL"`
}

// ProfileMatch pairs a DeviceProfile with its score against one Device.
type ProfileMatch struct {
	Profile *DeviceProfile
	Score   int
}

// Protocol names one of the control-plane protocol families, used both for
// adapter selection priority and as TargetAssessment.PrimaryProtocol.
type Protocol string

const (
	ProtocolCast       Protocol = "cast"
	ProtocolWAM        Protocol = "wam"
	ProtocolECP        Protocol = "ecp"
	ProtocolHEOS       Protocol = "heos"
	ProtocolMusicCast  Protocol = "musiccast"
	ProtocolJSONRPC    Protocol = "jsonrpc"
	ProtocolSoundTouch Protocol = "soundtouch"
	ProtocolUPnP       Protocol = "upnp"
	ProtocolUnknown    Protocol = "unknown"
)

// SecurityFinding is one noteworthy security-relevant observation made
// about a Device during mass assessment (e.g. an exposed admin action).
type SecurityFinding struct {
	Description string
	Severity    string
}

// TargetAssessment is the per-device output of the Mass Orchestrator.
type TargetAssessment struct {
	Device            Device
	ProfileMatch      ProfileMatch
	PrimaryProtocol   Protocol
	PriorityScore     int
	CategoriesSummary CapabilitySummary
	SecurityFindings  []SecurityFinding
}

// PriorityBucket classifies a TargetAssessment by its PriorityScore.
type PriorityBucket string

const (
	BucketHigh    PriorityBucket = "high"
	BucketMedium  PriorityBucket = "medium"
	BucketLow     PriorityBucket = "low"
	BucketUnknown PriorityBucket = "unknown"
)

// Bucket classifies a priority score into the report's four buckets. The
// thresholds follow the priority-ranking scenario of spec.md §8: a
// MediaRenderer-class device scores high (>=20), a bare Cast/DIAL endpoint
// with no services of its own is medium (>=10), anything with a nonzero
// signal is low, and a device with no matched profile and no notable
// services is unknown.
func Bucket(score int) PriorityBucket {
	switch {
	case score >= 20:
		return BucketHigh
	case score >= 10:
		return BucketMedium
	case score > 0:
		return BucketLow
	default:
		return BucketUnknown
	}
}
