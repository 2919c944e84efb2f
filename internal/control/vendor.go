package control

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/upnp-cli/upnptoolkit/internal/netprobe"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// placeholder matches the {NAME}-style template tokens a profile's endpoint
// templates use for argument substitution, e.g. {VOL}, {MEDIA_URL}, {TOKEN}.
var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// expandTemplate replaces every {NAME} token in tmpl with req.Arguments[NAME],
// leaving unmatched tokens untouched so a caller can detect a missing
// argument from the result rather than silently sending a literal "{NAME}".
func expandTemplate(tmpl string, args map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := args[name]; ok {
			return v
		}
		return m
	})
}

// endpointTemplate looks up a per-action template keyed "<action>.<suffix>"
// in a profile Endpoint's Extra table, the convention every vendor adapter
// below uses to keep path and body/command templates distinct.
func endpointTemplate(ep *upnpmodel.Endpoint, action, suffix string) (string, bool) {
	if ep == nil {
		return "", false
	}
	v, ok := ep.Extra[action+"."+suffix]
	return v, ok
}

func vendorTarget(device upnpmodel.Device, port int, path string, useSSL bool) string {
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", device.IP, port), Path: path}
	return u.String()
}

// --- ecpAdapter: Roku External Control Protocol ---

type ecpAdapter struct{}

func (a *ecpAdapter) Name() string                 { return "ecp" }
func (a *ecpAdapter) Protocol() upnpmodel.Protocol  { return upnpmodel.ProtocolECP }
func (a *ecpAdapter) CanHandle(p *upnpmodel.DeviceProfile) bool { return p != nil && p.ECP != nil }

func (a *ecpAdapter) Invoke(ctx context.Context, req Request, fetcher *netprobe.Fetcher) (Result, error) {
	ep := req.ProfileMatch.Profile.ECP
	_, action := req.ServiceAction()

	path, ok := endpointTemplate(ep, action, "path")
	if !ok {
		return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindUnknownAction, Message: action}
	}
	path = expandTemplate(path, req.Arguments)

	target := vendorTarget(req.Device, ep.Port, path, req.Options.UseSSL)
	headers := map[string]string{}
	var body []byte
	if form, ok := endpointTemplate(ep, action, "form"); ok {
		headers["Content-Type"] = "application/x-www-form-urlencoded"
		body = []byte(expandTemplate(form, req.Arguments))
	}

	status, respBody, _, err := fetcher.Do(ctx, "POST", target, body, headers, hostPortOf(req.Device), req.Options.fetcherOptions())
	if err != nil {
		return Result{}, err
	}
	if status != 200 {
		return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindHttpStatus, Code: status, ResponseSnippet: upnpmodel.Snippet(string(respBody), req.Options.Verbose)}
	}
	return Result{Status: StatusOK, Outputs: map[string]string{"body": string(respBody)}, Protocol: upnpmodel.ProtocolECP}, nil
}

func (a *ecpAdapter) BuildOnly(req Request) Result {
	ep := req.ProfileMatch.Profile.ECP
	_, action := req.ServiceAction()
	path, _ := endpointTemplate(ep, action, "path")
	path = expandTemplate(path, req.Arguments)
	return Result{Status: StatusOK, Protocol: upnpmodel.ProtocolECP, BuiltRequest: vendorTarget(req.Device, ep.Port, path, req.Options.UseSSL)}
}

// --- wamAdapter: Samsung Wireless Audio Multiroom ---

type wamAdapter struct{}

func (a *wamAdapter) Name() string                 { return "samsung-wam" }
func (a *wamAdapter) Protocol() upnpmodel.Protocol  { return upnpmodel.ProtocolWAM }
func (a *wamAdapter) CanHandle(p *upnpmodel.DeviceProfile) bool { return p != nil && p.WAM != nil }

func (a *wamAdapter) Invoke(ctx context.Context, req Request, fetcher *netprobe.Fetcher) (Result, error) {
	ep := req.ProfileMatch.Profile.WAM
	_, action := req.ServiceAction()

	cmd, ok := endpointTemplate(ep, action, "cmd")
	if !ok {
		return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindUnknownAction, Message: action}
	}
	cmd = expandTemplate(cmd, req.Arguments)

	target := vendorTarget(req.Device, ep.Port, "/UIC", req.Options.UseSSL) + "?cmd=" + url.QueryEscape(cmd)

	status, respBody, _, err := fetcher.Do(ctx, "GET", target, nil, nil, hostPortOf(req.Device), req.Options.fetcherOptions())
	if err != nil {
		return Result{}, err
	}
	if status != 200 {
		return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindHttpStatus, Code: status, ResponseSnippet: upnpmodel.Snippet(string(respBody), req.Options.Verbose)}
	}
	return Result{Status: StatusOK, Outputs: map[string]string{"body": string(respBody)}, Protocol: upnpmodel.ProtocolWAM}, nil
}

func (a *wamAdapter) BuildOnly(req Request) Result {
	ep := req.ProfileMatch.Profile.WAM
	_, action := req.ServiceAction()
	cmd, _ := endpointTemplate(ep, action, "cmd")
	cmd = expandTemplate(cmd, req.Arguments)
	target := vendorTarget(req.Device, ep.Port, "/UIC", req.Options.UseSSL) + "?cmd=" + url.QueryEscape(cmd)
	return Result{Status: StatusOK, Protocol: upnpmodel.ProtocolWAM, BuiltRequest: target}
}

// --- jsonBodyAdapter: shared HTTP JSON/XML-template behavior for the
// vendor protocols whose profiles describe a full path+body per action ---

type jsonBodyAdapter struct {
	name        string
	protocol    upnpmodel.Protocol
	contentType string
	endpointOf  func(*upnpmodel.DeviceProfile) *upnpmodel.Endpoint
}

func (a *jsonBodyAdapter) Name() string                { return a.name }
func (a *jsonBodyAdapter) Protocol() upnpmodel.Protocol { return a.protocol }
func (a *jsonBodyAdapter) CanHandle(p *upnpmodel.DeviceProfile) bool {
	return p != nil && a.endpointOf(p) != nil
}

func (a *jsonBodyAdapter) Invoke(ctx context.Context, req Request, fetcher *netprobe.Fetcher) (Result, error) {
	ep := a.endpointOf(req.ProfileMatch.Profile)
	_, action := req.ServiceAction()

	path, ok := endpointTemplate(ep, action, "path")
	if !ok {
		return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindUnknownAction, Message: action}
	}
	path = expandTemplate(path, req.Arguments)

	var body []byte
	headers := map[string]string{}
	method := "GET"
	if tmpl, ok := endpointTemplate(ep, action, "body"); ok {
		body = []byte(expandTemplate(tmpl, req.Arguments))
		headers["Content-Type"] = a.contentType
		method = "POST"
	}

	target := vendorTarget(req.Device, ep.Port, path, req.Options.UseSSL)
	status, respBody, _, err := fetcher.Do(ctx, method, target, body, headers, hostPortOf(req.Device), req.Options.fetcherOptions())
	if err != nil {
		return Result{}, err
	}
	if status != 200 {
		return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindHttpStatus, Code: status, ResponseSnippet: upnpmodel.Snippet(string(respBody), req.Options.Verbose)}
	}
	return Result{Status: StatusOK, Outputs: map[string]string{"body": string(respBody)}, Protocol: a.protocol}, nil
}

func (a *jsonBodyAdapter) BuildOnly(req Request) Result {
	ep := a.endpointOf(req.ProfileMatch.Profile)
	_, action := req.ServiceAction()
	path, _ := endpointTemplate(ep, action, "path")
	path = expandTemplate(path, req.Arguments)
	built := vendorTarget(req.Device, ep.Port, path, req.Options.UseSSL)
	if tmpl, ok := endpointTemplate(ep, action, "body"); ok {
		built += "\n" + expandTemplate(tmpl, req.Arguments)
	}
	return Result{Status: StatusOK, Protocol: a.protocol, BuiltRequest: built}
}

func newHeosAdapter() Adapter {
	return &jsonBodyAdapter{
		name: "heos", protocol: upnpmodel.ProtocolHEOS, contentType: "application/json",
		endpointOf: func(p *upnpmodel.DeviceProfile) *upnpmodel.Endpoint { return p.HEOS },
	}
}

func newMusicCastAdapter() Adapter {
	return &jsonBodyAdapter{
		name: "musiccast", protocol: upnpmodel.ProtocolMusicCast, contentType: "application/json",
		endpointOf: func(p *upnpmodel.DeviceProfile) *upnpmodel.Endpoint { return p.MusicCast },
	}
}

func newJSONRPCAdapter() Adapter {
	return &jsonBodyAdapter{
		name: "jsonrpc", protocol: upnpmodel.ProtocolJSONRPC, contentType: "application/json",
		endpointOf: func(p *upnpmodel.DeviceProfile) *upnpmodel.Endpoint { return p.JSONRPC },
	}
}

func newSoundTouchAdapter() Adapter {
	return &jsonBodyAdapter{
		name: "soundtouch", protocol: upnpmodel.ProtocolSoundTouch, contentType: "text/xml",
		endpointOf: func(p *upnpmodel.DeviceProfile) *upnpmodel.Endpoint { return p.SoundTouch },
	}
}

// --- castAdapter: identification only, per spec.md §4.4 ---

type castAdapter struct{}

func (a *castAdapter) Name() string                 { return "cast" }
func (a *castAdapter) Protocol() upnpmodel.Protocol  { return upnpmodel.ProtocolCast }
func (a *castAdapter) CanHandle(p *upnpmodel.DeviceProfile) bool { return p != nil && p.Cast != nil }

func (a *castAdapter) Invoke(ctx context.Context, req Request, fetcher *netprobe.Fetcher) (Result, error) {
	ep := req.ProfileMatch.Profile.Cast
	endpoint := fmt.Sprintf("%s:%d", req.Device.IP, ep.Port)
	return Result{}, &upnpmodel.Error{
		Kind:    upnpmodel.KindNotImplemented,
		Message: "Cast media-session protocol is not implemented; discovered endpoint " + endpoint,
	}
}

func (a *castAdapter) BuildOnly(req Request) Result {
	ep := req.ProfileMatch.Profile.Cast
	return Result{
		Status:       StatusOK,
		Protocol:     upnpmodel.ProtocolCast,
		BuiltRequest: fmt.Sprintf("%s:%d", req.Device.IP, ep.Port),
	}
}
