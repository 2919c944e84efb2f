package control

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/upnp-cli/upnptoolkit/internal/netprobe"
	"github.com/upnp-cli/upnptoolkit/internal/profiling"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
	"github.com/upnp-cli/upnptoolkit/internal/xmlnorm"
)

// validateArguments checks every declared in-argument that req.Arguments
// supplies a value for against its SCPD-declared numeric type and Range,
// per spec.md §4.4's BUILD state, before an envelope is ever sent.
// Arguments the caller didn't supply, non-numeric types, and numeric types
// without a declared Range are not checked.
func validateArguments(declared []upnpmodel.ActionArgument, args map[string]string) error {
	for _, arg := range declared {
		value, ok := args[arg.Name]
		if !ok {
			continue
		}
		if err := validateNumericArgument(arg, value); err != nil {
			return err
		}
	}
	return nil
}

func validateNumericArgument(arg upnpmodel.ActionArgument, value string) error {
	if !xmlnorm.ArgumentDataTypeIsNumeric(arg.DataType) || arg.Range == nil {
		return nil
	}
	v, ok := xmlnorm.ParseIntArg(value)
	if !ok {
		// Non-integer numeric types (r4, r8, fixed.14.4) aren't covered by
		// ParseIntArg; the range check is skipped rather than rejecting a
		// value it can't parse.
		return nil
	}
	if min, ok := xmlnorm.ParseIntArg(arg.Range.Min); ok && v < min {
		return &upnpmodel.Error{Kind: upnpmodel.KindInvalidArgument, Message: fmt.Sprintf("%s=%s is below the declared minimum %s", arg.Name, value, arg.Range.Min)}
	}
	if max, ok := xmlnorm.ParseIntArg(arg.Range.Max); ok && v > max {
		return &upnpmodel.Error{Kind: upnpmodel.KindInvalidArgument, Message: fmt.Sprintf("%s=%s is above the declared maximum %s", arg.Name, value, arg.Range.Max)}
	}
	return nil
}

// declaredArguments fetches the SCPD-declared in-arguments for a service
// action, used both to order the envelope and to validate values against
// declared ranges.
func declaredArguments(ctx context.Context, device upnpmodel.Device, serviceName, actionName string) ([]upnpmodel.ActionArgument, error) {
	action, _, err := profiling.FetchAction(ctx, device, serviceName, actionName, profiling.Config{})
	if err != nil {
		return nil, err
	}
	return action.ArgumentsIn, nil
}

func argumentOrder(args []upnpmodel.ActionArgument) []string {
	order := make([]string, 0, len(args))
	for _, a := range args {
		order = append(order, a.Name)
	}
	return order
}

// buildSoapEnvelope constructs a SOAP 1.1 envelope with body element
// <u:{action} xmlns:u="{serviceType}">, encoding args as direct children in
// declaredOrder. Arguments not present in declaredOrder are appended after,
// sorted by name, so an unknown argument is never silently dropped.
func buildSoapEnvelope(serviceType, action string, args map[string]string, declaredOrder []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	buf.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	buf.WriteString(`<s:Body>`)
	fmt.Fprintf(&buf, `<u:%s xmlns:u="%s">`, action, xmlEscapeAttr(serviceType))

	written := map[string]bool{}
	for _, name := range declaredOrder {
		value, ok := args[name]
		if !ok {
			continue
		}
		writeArgElement(&buf, name, value)
		written[name] = true
	}
	for _, name := range sortedKeys(args) {
		if written[name] {
			continue
		}
		writeArgElement(&buf, name, args[name])
	}

	fmt.Fprintf(&buf, `</u:%s>`, action)
	buf.WriteString(`</s:Body></s:Envelope>`)
	return buf.Bytes()
}

func writeArgElement(buf *bytes.Buffer, name, value string) {
	fmt.Fprintf(buf, "<%s>", name)
	_ = xml.EscapeText(buf, []byte(value))
	fmt.Fprintf(buf, "</%s>", name)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sortStrings(out)
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func xmlEscapeAttr(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// soapActionHeader builds the quoted SOAPAction header value, per
// spec.md §4.4: "{service_type}#{action}".
func soapActionHeader(serviceType, action string) string {
	return fmt.Sprintf("%q", serviceType+"#"+action)
}

// soapFault is the parsed shape of a SOAP 1.1 fault body, including the
// nested UPnPError detail block UPnP devices attach.
type soapFault struct {
	FaultCode   string `xml:"Body>Fault>faultcode"`
	FaultString string `xml:"Body>Fault>faultstring"`
	ErrorCode   string `xml:"Body>Fault>detail>UPnPError>errorCode"`
	ErrorDesc   string `xml:"Body>Fault>detail>UPnPError>errorDescription"`
}

// parseSoapResponse extracts the named output arguments from a
// <u:{action}Response> element, or returns a SoapFault error if the
// response is a SOAP fault.
func parseSoapResponse(action string, body []byte) (map[string]string, error) {
	var fault soapFault
	if err := xml.Unmarshal(body, &fault); err == nil && (fault.FaultCode != "" || fault.FaultString != "") {
		upnpCode := 0
		if fault.ErrorCode != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(fault.ErrorCode)); err == nil {
				upnpCode = n
			}
		}
		return nil, &upnpmodel.Error{
			Kind:        upnpmodel.KindSoapFault,
			Code:        upnpCode,
			FaultCode:   fault.FaultCode,
			FaultString: fault.FaultString,
			Message:     fault.ErrorDesc,
		}
	}

	root, err := xmlnorm.ParseGeneric(body)
	if err != nil {
		return nil, &upnpmodel.Error{Kind: upnpmodel.KindMalformedXml, Message: "parsing SOAP response", Err: err}
	}
	respNode := root.FindRecursive(action + "Response")
	if respNode == nil {
		// Some devices omit the wrapper on empty responses; treat as an
		// empty but successful outputs set.
		return map[string]string{}, nil
	}
	outputs := map[string]string{}
	for _, child := range respNode.Children() {
		outputs[child.Tag()] = strings.TrimSpace(child.Text())
	}
	return outputs, nil
}

// --- soapAdapter: UPnP/SOAP via a profile's pinned control URL ---

type soapAdapter struct{}

func (a *soapAdapter) Name() string                 { return "upnp-soap" }
func (a *soapAdapter) Protocol() upnpmodel.Protocol  { return upnpmodel.ProtocolUPnP }
func (a *soapAdapter) CanHandle(p *upnpmodel.DeviceProfile) bool {
	return p != nil && len(p.UPnP) > 0
}

func (a *soapAdapter) Invoke(ctx context.Context, req Request, fetcher *netprobe.Fetcher) (Result, error) {
	serviceName, actionName := req.ServiceAction()
	profile := req.ProfileMatch.Profile
	hint, ok := profile.UPnP[serviceName]
	if !ok {
		return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindUnknownService, Message: serviceName}
	}

	var declaredOrder []string
	if declaredArgs, err := declaredArguments(ctx, req.Device, serviceName, actionName); err == nil {
		if verr := validateArguments(declaredArgs, req.Arguments); verr != nil {
			return Result{}, verr
		}
		declaredOrder = argumentOrder(declaredArgs)
	}
	// A fetch failure falls back to an unordered, unvalidated envelope rather
	// than failing outright: the profile pins the control URL, but its SCPD
	// may be unreachable.

	return sendSoap(ctx, fetcher, req, hint.ControlURL, hint.ServiceType, actionName, declaredOrder)
}

func (a *soapAdapter) BuildOnly(req Request) Result {
	serviceName, actionName := req.ServiceAction()
	hint := req.ProfileMatch.Profile.UPnP[serviceName]
	envelope := buildSoapEnvelope(hint.ServiceType, actionName, req.Arguments, nil)
	return Result{Status: StatusOK, Protocol: upnpmodel.ProtocolUPnP, BuiltRequest: string(envelope)}
}

// --- genericFallbackAdapter: UPnP/SOAP using the device's own description ---

type genericFallbackAdapter struct{}

func (a *genericFallbackAdapter) Name() string                { return "generic-upnp" }
func (a *genericFallbackAdapter) Protocol() upnpmodel.Protocol { return upnpmodel.ProtocolUPnP }
func (a *genericFallbackAdapter) CanHandle(p *upnpmodel.DeviceProfile) bool {
	return true
}

func (a *genericFallbackAdapter) Invoke(ctx context.Context, req Request, fetcher *netprobe.Fetcher) (Result, error) {
	serviceName, actionName := req.ServiceAction()

	svc, ok := profiling.LookupService(req.Device, serviceName)
	if !ok {
		return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindUnknownService, Message: serviceName}
	}

	action, _, err := profiling.FetchAction(ctx, req.Device, serviceName, actionName, profiling.Config{Timeout: req.Options.Timeout})
	var declaredOrder []string
	if err == nil {
		if verr := validateArguments(action.ArgumentsIn, req.Arguments); verr != nil {
			return Result{}, verr
		}
		declaredOrder = argumentOrder(action.ArgumentsIn)
	}

	return sendSoap(ctx, fetcher, req, svc.ControlURL, svc.ServiceType, actionName, declaredOrder)
}

func (a *genericFallbackAdapter) BuildOnly(req Request) Result {
	serviceName, actionName := req.ServiceAction()
	svc, ok := profiling.LookupService(req.Device, serviceName)
	serviceType := serviceName
	if ok {
		serviceType = svc.ServiceType
	}
	envelope := buildSoapEnvelope(serviceType, actionName, req.Arguments, nil)
	return Result{Status: StatusOK, Protocol: upnpmodel.ProtocolUPnP, BuiltRequest: string(envelope)}
}

// sendSoap builds and transmits one SOAP request, parsing the response or
// SOAP fault, per the BUILD -> SEND -> WAIT -> PARSE state machine.
func sendSoap(ctx context.Context, fetcher *netprobe.Fetcher, req Request, controlURL, serviceType, actionName string, declaredOrder []string) (Result, error) {
	envelope := buildSoapEnvelope(serviceType, actionName, req.Arguments, declaredOrder)

	target, err := resolveTarget(req.Device, controlURL, req.Options.UseSSL)
	if err != nil {
		return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindInvalidArgument, Message: "resolving control URL", Err: err}
	}

	headers := map[string]string{
		"Content-Type": `text/xml; charset="utf-8"`,
		"SOAPAction":   soapActionHeader(serviceType, actionName),
		"Connection":   "close",
	}

	status, body, _, err := fetcher.Do(ctx, "POST", target, envelope, headers, hostPortOf(req.Device), req.Options.fetcherOptions())
	if err != nil {
		return Result{}, err
	}

	// A device conventionally answers a SOAP fault with HTTP 500, the body
	// carrying the UPnPError detail (errorCode/errorDescription); parse it
	// there too rather than swallowing it into a bare status error. Only
	// fall back to KindHttpStatus once the body doesn't parse as a fault.
	if status != 200 && status != 500 {
		return Result{}, &upnpmodel.Error{
			Kind:            upnpmodel.KindHttpStatus,
			Code:            status,
			RequestSnippet:  upnpmodel.Snippet(string(envelope), req.Options.Verbose),
			ResponseSnippet: upnpmodel.Snippet(string(body), req.Options.Verbose),
		}
	}

	outputs, err := parseSoapResponse(actionName, body)
	if err != nil {
		if upErr, ok := err.(*upnpmodel.Error); ok {
			upErr.RequestSnippet = upnpmodel.Snippet(string(envelope), req.Options.Verbose)
			upErr.ResponseSnippet = upnpmodel.Snippet(string(body), req.Options.Verbose)
		}
		return Result{}, err
	}
	if status != 200 {
		return Result{}, &upnpmodel.Error{
			Kind:            upnpmodel.KindHttpStatus,
			Code:            status,
			RequestSnippet:  upnpmodel.Snippet(string(envelope), req.Options.Verbose),
			ResponseSnippet: upnpmodel.Snippet(string(body), req.Options.Verbose),
		}
	}

	return Result{Status: StatusOK, Outputs: outputs, Protocol: upnpmodel.ProtocolUPnP}, nil
}

func resolveTarget(device upnpmodel.Device, controlURL string, useSSL bool) (string, error) {
	if strings.HasPrefix(controlURL, "http://") || strings.HasPrefix(controlURL, "https://") {
		return controlURL, nil
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: hostPortOf(device), Path: controlURL}
	return u.String(), nil
}

func hostPortOf(device upnpmodel.Device) string {
	return fmt.Sprintf("%s:%d", device.IP, device.Port)
}
