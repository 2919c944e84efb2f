package profilestore

import "testing"

func TestParseProfileBuildsMatchAndEndpoints(t *testing.T) {
	data := []byte(`{
		"name": "Sonos One",
		"match": {"manufacturer": ["Sonos, Inc."], "modelName": ["One"]},
		"upnp": {"avtransport": {"serviceType": "urn:schemas-upnp-org:service:AVTransport:1", "controlURL": "/MediaRenderer/AVTransport/Control"}},
		"cast": {"port": 8009, "extra": {"model": "chromecast"}},
		"notes": "test fixture"
	}`)

	profile, err := parseProfile(data)
	if err != nil {
		t.Fatalf("parseProfile: %v", err)
	}
	if profile.Name != "Sonos One" {
		t.Errorf("Name = %q, want %q", profile.Name, "Sonos One")
	}
	if len(profile.Match.Manufacturer) != 1 || profile.Match.Manufacturer[0] != "Sonos, Inc." {
		t.Errorf("Match.Manufacturer = %v", profile.Match.Manufacturer)
	}
	hint, ok := profile.UPnP["avtransport"]
	if !ok {
		t.Fatal("expected an avtransport UPnP hint")
	}
	if hint.ControlURL != "/MediaRenderer/AVTransport/Control" {
		t.Errorf("ControlURL = %q", hint.ControlURL)
	}
	if profile.Cast == nil || profile.Cast.Port != 8009 || profile.Cast.Extra["model"] != "chromecast" {
		t.Errorf("Cast endpoint = %+v", profile.Cast)
	}
	if profile.WAM != nil {
		t.Errorf("expected WAM endpoint to be nil when absent from the source, got %+v", profile.WAM)
	}
}

func TestParseProfileRejectsMissingName(t *testing.T) {
	_, err := parseProfile([]byte(`{"match": {"manufacturer": ["Sonos"]}}`))
	if err == nil {
		t.Error("expected an error for a profile with no name")
	}
}

func TestParseProfileRejectsInvalidJSON(t *testing.T) {
	_, err := parseProfile([]byte(`not json`))
	if err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestGenericFallbackMatchesMediaRendererOnly(t *testing.T) {
	fallback := genericFallback()
	if !fallback.IsGenericFallback {
		t.Error("expected IsGenericFallback to be true")
	}
	if len(fallback.Match.DeviceType) != 1 || fallback.Match.DeviceType[0] != "MediaRenderer" {
		t.Errorf("Match.DeviceType = %v, want [MediaRenderer]", fallback.Match.DeviceType)
	}
	if fallback.Name != genericFallbackName {
		t.Errorf("Name = %q, want %q", fallback.Name, genericFallbackName)
	}
}

func TestLoadDirMissingDirectoryIsNotAnError(t *testing.T) {
	store, err := LoadDir("/nonexistent/path/for/profilestore/test", nil)
	if err != nil {
		t.Fatalf("LoadDir with a missing directory should not error, got %v", err)
	}
	if store.Len() == 0 {
		t.Error("expected LoadDir to still return the built-in profiles plus fallback")
	}
}
