// Package profilegen builds a new profile record from a device's own
// description and Action Inventory, the auto-profile-generation supplement:
// crawl a device once with the Profiling Engine, then emit a profile file in
// the same JSON shape internal/profilestore already loads, seeded with the
// device's own UPnP control URLs instead of requiring an operator to author
// one by hand.
package profilegen

import (
	"context"
	"encoding/json"
	"time"

	"github.com/upnp-cli/upnptoolkit/internal/profiling"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// upnpService mirrors profilestore's on-disk UPnP hint shape so a generated
// profile round-trips through profilestore.LoadDir unmodified.
type upnpService struct {
	ServiceType string `json:"serviceType"`
	ControlURL  string `json:"controlURL"`
}

type matchCriteria struct {
	Manufacturer []string `json:"manufacturer,omitempty"`
	ModelName    []string `json:"modelName,omitempty"`
	DeviceType   []string `json:"deviceType,omitempty"`
}

// Metadata records how the profile was produced, for a human reviewing a
// generated file before promoting it into the profile directory.
type Metadata struct {
	GeneratedAt      time.Time `json:"generatedAt"`
	ServicesAnalyzed int       `json:"servicesAnalyzed"`
	SuccessfulParses int       `json:"successfulParses"`
	TotalActions     int       `json:"totalActions"`
}

// Profile is the generated record. Its JSON shape is a strict subset of
// fileProfile in internal/profilestore (name/match/upnp) plus a Metadata
// block profilestore ignores on load.
type Profile struct {
	Name     string                 `json:"name"`
	Match    matchCriteria          `json:"match"`
	UPnP     map[string]upnpService `json:"upnp,omitempty"`
	Metadata Metadata               `json:"metadata"`
}

// Generate crawls device with the Profiling Engine and derives a Profile
// matching this exact device's manufacturer/model/deviceType, with a UPnP
// service hint per service the inventory recovered actions for.
func Generate(ctx context.Context, device upnpmodel.Device, cfg profiling.Config, now time.Time) Profile {
	result := profiling.Profile(ctx, device, cfg)
	return FromResult(device, result, now)
}

// FromResult builds a Profile from an already-computed profiling.Result,
// letting a caller that profiled a device for another reason (e.g. the
// "profile" CLI command's inspection pass) generate a profile file without
// crawling the device a second time.
func FromResult(device upnpmodel.Device, result profiling.Result, now time.Time) Profile {
	services := make(map[string]upnpService, len(result.Inventory))
	for serviceName := range result.Inventory {
		svc, ok := profiling.LookupService(device, serviceName)
		if !ok {
			continue
		}
		services[serviceName] = upnpService{ServiceType: svc.ServiceType, ControlURL: svc.ControlURL}
	}

	name := device.Manufacturer
	if device.ModelName != "" {
		name += " " + device.ModelName
	}
	if name == "" {
		name = device.FriendlyName
	}

	return Profile{
		Name: name,
		Match: matchCriteria{
			Manufacturer: nonEmpty(device.Manufacturer),
			ModelName:    nonEmpty(device.ModelName),
			DeviceType:   nonEmpty(device.DeviceType),
		},
		UPnP: services,
		Metadata: Metadata{
			GeneratedAt:      now,
			ServicesAnalyzed: result.Analysis.ServicesAnalyzed,
			SuccessfulParses: result.Analysis.SuccessfulParses,
			TotalActions:     result.Analysis.TotalActions,
		},
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// MarshalJSON renders the profile as indented JSON, the same format
// internal/profilestore.LoadDir reads from a profile directory. json.Marshal
// compacts a Marshaler's output, so a Profile passed through it comes out
// as compact JSON.
func (p Profile) MarshalJSON() ([]byte, error) {
	type alias Profile
	return json.MarshalIndent(alias(p), "", "  ")
}
