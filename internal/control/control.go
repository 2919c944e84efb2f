// Package control implements the Control Engine: SOAP envelope
// construction and transport for UPnP actions, plus a priority-ordered set
// of vendor protocol adapters selected by profile match, per spec.md §4.4.
package control

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upnp-cli/upnptoolkit/internal/netprobe"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// Status is the outcome of one Invoke call, mapped by the CLI collaborator
// to an exit code per spec.md §6.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// invocationState names the state-machine steps of spec.md §4.4:
// BUILD -> SEND -> WAIT -> PARSE -> DONE|FAIL.
type invocationState string

const (
	stateBuild invocationState = "BUILD"
	stateSend  invocationState = "SEND"
	stateWait  invocationState = "WAIT"
	stateParse invocationState = "PARSE"
	stateDone  invocationState = "DONE"
	stateFail  invocationState = "FAIL"
)

// Options are the transport options of spec.md §4.4.
type Options struct {
	Timeout     time.Duration
	UseSSL      bool
	VerifyTLS   bool
	Stealth     bool
	Retry       bool
	MaxAttempts int
	DryRun      bool
	Verbose     bool
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if !o.UseSSL {
		o.VerifyTLS = true
	}
	return o
}

func (o Options) fetcherOptions() netprobe.FetcherOptions {
	return netprobe.FetcherOptions{Timeout: o.Timeout, VerifyTLS: o.VerifyTLS, Stealth: o.Stealth}
}

// Request is one action-invocation request: a target device, its matched
// profile (may be a zero value if no profile matched), the qualified action
// name ("Service#Action"), and its argument values.
type Request struct {
	Device       upnpmodel.Device
	ProfileMatch upnpmodel.ProfileMatch
	ActionName   string
	Arguments    map[string]string
	Options      Options
}

// ServiceAction splits a qualified action name ("RenderingControl#SetVolume")
// into its service and action components.
func (r Request) ServiceAction() (service, action string) {
	idx := strings.Index(r.ActionName, "#")
	if idx < 0 {
		return "", r.ActionName
	}
	return r.ActionName[:idx], r.ActionName[idx+1:]
}

// Result is the outcome of one Invoke call.
type Result struct {
	Status       Status
	Outputs      map[string]string
	Error        *upnpmodel.Error
	Protocol     upnpmodel.Protocol
	BuiltRequest string // populated when Options.DryRun is set
}

// Adapter is a single protocol family's request builder/transport/parser,
// a discriminated set of interface implementations rather than
// string-keyed branching, per spec.md §9.
type Adapter interface {
	Name() string
	Protocol() upnpmodel.Protocol
	// CanHandle reports whether this adapter can serve the given profile.
	// profile may be nil, in which case only the generic UPnP fallback
	// adapter should report true.
	CanHandle(profile *upnpmodel.DeviceProfile) bool
	Invoke(ctx context.Context, req Request, fetcher *netprobe.Fetcher) (Result, error)
}

// Engine executes actions against devices, selecting an adapter by the
// fixed priority order of spec.md §4.4: Cast, WAM, ECP, HEOS, MusicCast,
// JSON-RPC, SoundTouch, UPnP, then the generic fallback.
type Engine struct {
	adapters []Adapter
	fetcher  *netprobe.Fetcher
	logger   *zap.Logger
}

// NewEngine builds a Control Engine with the standard adapter set
// registered in priority order.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		adapters: []Adapter{
			&castAdapter{},
			&wamAdapter{},
			&ecpAdapter{},
			newHeosAdapter(),
			newMusicCastAdapter(),
			newJSONRPCAdapter(),
			newSoundTouchAdapter(),
			&soapAdapter{},
			&genericFallbackAdapter{},
		},
		fetcher: netprobe.NewFetcher(),
		logger:  logger,
	}
}

// SelectAdapter returns the highest-priority adapter that can handle
// profile, per the registration order of NewEngine.
func (e *Engine) SelectAdapter(profile *upnpmodel.DeviceProfile) Adapter {
	for _, a := range e.adapters {
		if a.CanHandle(profile) {
			return a
		}
	}
	return e.adapters[len(e.adapters)-1] // generic fallback always matches
}

// Invoke executes req.ActionName against req.Device via the adapter
// selected by req.ProfileMatch. Retries are applied only to the transient
// error subset named in spec.md §7, and never when Options.DryRun is set.
func (e *Engine) Invoke(ctx context.Context, req Request) Result {
	req.Options = req.Options.withDefaults()

	adapter := e.SelectAdapter(req.ProfileMatch.Profile)

	e.logger.Debug("invoke: BUILD", zap.String("action", req.ActionName), zap.String("adapter", adapter.Name()))

	if req.Options.DryRun {
		return e.dryRun(ctx, adapter, req)
	}

	if !req.Options.Retry {
		result, err := adapter.Invoke(ctx, req, e.fetcher)
		return finalize(result, err, adapter.Protocol())
	}

	result, err := retryInvoke(ctx, adapter, req, e.fetcher, req.Options.MaxAttempts)
	return finalize(result, err, adapter.Protocol())
}

func (e *Engine) dryRun(ctx context.Context, adapter Adapter, req Request) Result {
	if builder, ok := adapter.(dryRunAdapter); ok {
		return builder.BuildOnly(req)
	}
	return Result{Status: StatusOK, Protocol: adapter.Protocol(), BuiltRequest: "dry-run not supported by adapter " + adapter.Name()}
}

// dryRunAdapter is implemented by adapters that can describe the request
// they would send without transmitting it.
type dryRunAdapter interface {
	BuildOnly(req Request) Result
}

func finalize(result Result, err error, protocol upnpmodel.Protocol) Result {
	if err != nil {
		if upErr, ok := err.(*upnpmodel.Error); ok {
			return Result{Status: StatusFailed, Error: upErr, Protocol: protocol}
		}
		return Result{Status: StatusFailed, Error: &upnpmodel.Error{Kind: upnpmodel.KindTimeout, Err: err}, Protocol: protocol}
	}
	if result.Protocol == "" {
		result.Protocol = protocol
	}
	if result.Status == "" {
		result.Status = StatusOK
	}
	return result
}
