package control

import (
	"strings"
	"testing"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

func TestBuildSoapEnvelopeOrdersArgumentsByDeclaration(t *testing.T) {
	args := map[string]string{"DesiredVolume": "42", "Channel": "Master", "InstanceID": "0"}
	order := []string{"InstanceID", "Channel", "DesiredVolume"}

	envelope := string(buildSoapEnvelope("urn:schemas-upnp-org:service:RenderingControl:1", "SetVolume", args, order))

	if !strings.Contains(envelope, `<u:SetVolume xmlns:u="urn:schemas-upnp-org:service:RenderingControl:1">`) {
		t.Fatalf("missing body element with service type namespace: %s", envelope)
	}
	if !strings.Contains(envelope, `</u:SetVolume>`) {
		t.Fatalf("missing closing body element: %s", envelope)
	}

	iID := strings.Index(envelope, "<InstanceID>")
	iChan := strings.Index(envelope, "<Channel>")
	iVol := strings.Index(envelope, "<DesiredVolume>")
	if !(iID < iChan && iChan < iVol) {
		t.Fatalf("arguments not emitted in declared order: %s", envelope)
	}
}

func TestBuildSoapEnvelopeEscapesArgumentValues(t *testing.T) {
	envelope := string(buildSoapEnvelope("urn:x", "SetUri", map[string]string{"CurrentURI": "http://a/b?x=1&y=2"}, []string{"CurrentURI"}))
	if strings.Contains(envelope, "x=1&y=2") {
		t.Fatalf("expected ampersand to be escaped: %s", envelope)
	}
	if !strings.Contains(envelope, "&amp;y=2") {
		t.Fatalf("expected &amp; escaping, got: %s", envelope)
	}
}

func TestSoapActionHeaderIsQuoted(t *testing.T) {
	got := soapActionHeader("urn:schemas-upnp-org:service:AVTransport:1", "Play")
	want := `"urn:schemas-upnp-org:service:AVTransport:1#Play"`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestParseSoapResponseExtractsOutputArguments(t *testing.T) {
	body := []byte(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Body>
<u:GetVolumeResponse xmlns:u="urn:schemas-upnp-org:service:RenderingControl:1">
<CurrentVolume>37</CurrentVolume>
</u:GetVolumeResponse>
</s:Body>
</s:Envelope>`)

	outputs, err := parseSoapResponse("GetVolume", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["CurrentVolume"] != "37" {
		t.Fatalf("expected CurrentVolume=37, got %v", outputs)
	}
}

func TestParseSoapResponseDetectsFault(t *testing.T) {
	body := []byte(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Body>
<s:Fault>
<faultcode>s:Client</faultcode>
<faultstring>UPnPError</faultstring>
<detail>
<UPnPError xmlns="urn:schemas-upnp-org:control-1-0">
<errorCode>402</errorCode>
<errorDescription>Invalid Args</errorDescription>
</UPnPError>
</detail>
</s:Fault>
</s:Body>
</s:Envelope>`)

	_, err := parseSoapResponse("SetVolume", body)
	if err == nil {
		t.Fatal("expected a SOAP fault error")
	}
	upErr, ok := err.(*upnpmodel.Error)
	if !ok {
		t.Fatalf("expected *upnpmodel.Error, got %T", err)
	}
	if upErr.Kind != upnpmodel.KindSoapFault {
		t.Fatalf("expected KindSoapFault, got %s", upErr.Kind)
	}
	if upErr.Code != 402 {
		t.Fatalf("expected UPnP error code 402, got %d", upErr.Code)
	}
	if upErr.IsTransient() {
		t.Fatalf("error code 402 (Invalid Args) must not be classified transient")
	}
}

func TestSelectAdapterPrefersCastOverUPnP(t *testing.T) {
	engine := NewEngine(nil)
	profile := &upnpmodel.DeviceProfile{
		Cast: &upnpmodel.Endpoint{Port: 8009},
		UPnP: map[string]upnpmodel.UPnPServiceHint{"avtransport": {ServiceType: "urn:x", ControlURL: "/c"}},
	}
	adapter := engine.SelectAdapter(profile)
	if adapter.Protocol() != upnpmodel.ProtocolCast {
		t.Fatalf("expected cast adapter to win priority, got %s", adapter.Protocol())
	}
}

func TestSelectAdapterFallsBackToGenericUPnP(t *testing.T) {
	engine := NewEngine(nil)
	adapter := engine.SelectAdapter(nil)
	if adapter.Protocol() != upnpmodel.ProtocolUPnP {
		t.Fatalf("expected generic UPnP fallback for a nil profile, got %s", adapter.Protocol())
	}
}

func TestRequestServiceActionSplitsOnHash(t *testing.T) {
	r := Request{ActionName: "RenderingControl#SetVolume"}
	service, action := r.ServiceAction()
	if service != "RenderingControl" || action != "SetVolume" {
		t.Fatalf("expected (RenderingControl, SetVolume), got (%s, %s)", service, action)
	}
}

func TestCastAdapterInvokeReturnsNotImplemented(t *testing.T) {
	a := &castAdapter{}
	req := Request{
		Device:       upnpmodel.Device{IP: "10.0.0.5"},
		ProfileMatch: upnpmodel.ProfileMatch{Profile: &upnpmodel.DeviceProfile{Cast: &upnpmodel.Endpoint{Port: 8009}}},
	}
	_, err := a.Invoke(nil, req, nil)
	upErr, ok := err.(*upnpmodel.Error)
	if !ok || upErr.Kind != upnpmodel.KindNotImplemented {
		t.Fatalf("expected KindNotImplemented, got %v", err)
	}
}

func TestExpandTemplateSubstitutesKnownPlaceholders(t *testing.T) {
	got := expandTemplate(`<p name="volume" val="{VOL}"/>`, map[string]string{"VOL": "17"})
	if got != `<p name="volume" val="17"/>` {
		t.Fatalf("unexpected expansion: %s", got)
	}
}

func TestExpandTemplateLeavesUnknownPlaceholdersIntact(t *testing.T) {
	got := expandTemplate("{TOKEN}", map[string]string{})
	if got != "{TOKEN}" {
		t.Fatalf("expected unresolved placeholder to remain literal, got %s", got)
	}
}

func TestValidateNumericArgumentRejectsOutOfRangeValue(t *testing.T) {
	arg := upnpmodel.ActionArgument{
		Name:     "DesiredVolume",
		DataType: "ui2",
		Range:    &upnpmodel.Range{Min: "0", Max: "100"},
	}

	err := validateNumericArgument(arg, "150")
	if err == nil {
		t.Fatal("expected an error for a value above the declared maximum")
	}
	upErr, ok := err.(*upnpmodel.Error)
	if !ok || upErr.Kind != upnpmodel.KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument, got %v", err)
	}

	if err := validateNumericArgument(arg, "-1"); err == nil {
		t.Fatal("expected an error for a value below the declared minimum")
	}
	if err := validateNumericArgument(arg, "50"); err != nil {
		t.Errorf("expected an in-range value to pass, got %v", err)
	}
}

func TestValidateNumericArgumentSkipsNonNumericTypesAndUnrangedArgs(t *testing.T) {
	stringArg := upnpmodel.ActionArgument{Name: "Channel", DataType: "string", Range: &upnpmodel.Range{Min: "0", Max: "1"}}
	if err := validateNumericArgument(stringArg, "Master"); err != nil {
		t.Errorf("non-numeric type should never be range-checked, got %v", err)
	}

	unranged := upnpmodel.ActionArgument{Name: "InstanceID", DataType: "ui4"}
	if err := validateNumericArgument(unranged, "999999"); err != nil {
		t.Errorf("an argument with no declared Range should never be rejected, got %v", err)
	}

	float := upnpmodel.ActionArgument{Name: "Gain", DataType: "r4", Range: &upnpmodel.Range{Min: "0", Max: "10"}}
	if err := validateNumericArgument(float, "3.5"); err != nil {
		t.Errorf("a non-integer numeric type should skip the ParseIntArg-based range check, got %v", err)
	}
}

func TestValidateArgumentsOnlyChecksSuppliedValues(t *testing.T) {
	declared := []upnpmodel.ActionArgument{
		{Name: "DesiredVolume", DataType: "ui2", Range: &upnpmodel.Range{Min: "0", Max: "100"}},
		{Name: "Channel", DataType: "string"},
	}

	if err := validateArguments(declared, map[string]string{"Channel": "Master"}); err != nil {
		t.Errorf("expected no error when the out-of-range argument wasn't supplied, got %v", err)
	}
	if err := validateArguments(declared, map[string]string{"DesiredVolume": "200"}); err == nil {
		t.Error("expected an error for a supplied out-of-range argument")
	}
}
