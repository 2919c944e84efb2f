package profilegen

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/upnp-cli/upnptoolkit/internal/profiling"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

func TestFromResultBuildsMatchAndUPnPHints(t *testing.T) {
	device := upnpmodel.Device{
		Manufacturer: "Sonos, Inc.",
		ModelName:    "One",
		DeviceType:   "urn:schemas-upnp-org:device:ZonePlayer:1",
		Services: []upnpmodel.Service{
			{ServiceType: "urn:schemas-upnp-org:service:AVTransport:1", ControlURL: "/MediaRenderer/AVTransport/Control", SCPDURL: "/xml/AVTransport1.xml"},
		},
	}
	result := profiling.Result{
		Inventory: upnpmodel.ActionInventory{
			"avtransport": {"Play": upnpmodel.SoapAction{Name: "Play"}},
		},
		Analysis: upnpmodel.ScpdAnalysis{ServicesAnalyzed: 1, SuccessfulParses: 1, TotalActions: 1},
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	profile := FromResult(device, result, now)

	if profile.Name != "Sonos, Inc. One" {
		t.Errorf("Name = %q, want %q", profile.Name, "Sonos, Inc. One")
	}
	if len(profile.Match.Manufacturer) != 1 || profile.Match.Manufacturer[0] != "Sonos, Inc." {
		t.Errorf("Match.Manufacturer = %v", profile.Match.Manufacturer)
	}
	hint, ok := profile.UPnP["avtransport"]
	if !ok {
		t.Fatalf("expected avtransport service hint, got %v", profile.UPnP)
	}
	if hint.ControlURL != "/MediaRenderer/AVTransport/Control" {
		t.Errorf("ControlURL = %q", hint.ControlURL)
	}
	if profile.Metadata.TotalActions != 1 {
		t.Errorf("Metadata.TotalActions = %d, want 1", profile.Metadata.TotalActions)
	}
}

func TestFromResultSkipsServicesMissingFromDevice(t *testing.T) {
	device := upnpmodel.Device{Manufacturer: "Acme"}
	result := profiling.Result{
		Inventory: upnpmodel.ActionInventory{
			"renderingcontrol": {"SetVolume": upnpmodel.SoapAction{Name: "SetVolume"}},
		},
	}

	profile := FromResult(device, result, time.Now())
	if len(profile.UPnP) != 0 {
		t.Errorf("expected no UPnP hints for a service absent from the device, got %v", profile.UPnP)
	}
}

func TestProfileMarshalJSONRoundTripsMatchShape(t *testing.T) {
	profile := FromResult(upnpmodel.Device{Manufacturer: "Acme", ModelName: "X1"}, profiling.Result{}, time.Now())

	data, err := json.Marshal(profile)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded struct {
		Name  string `json:"name"`
		Match struct {
			Manufacturer []string `json:"manufacturer"`
			ModelName    []string `json:"modelName"`
		} `json:"match"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Name != "Acme X1" {
		t.Errorf("decoded.Name = %q", decoded.Name)
	}
	if len(decoded.Match.ModelName) != 1 || decoded.Match.ModelName[0] != "X1" {
		t.Errorf("decoded.Match.ModelName = %v", decoded.Match.ModelName)
	}
}
