// Package profiling implements the Profiling Engine: for a single device,
// fetches every SCPD concurrently and assembles the full Action Inventory,
// per spec.md §4.3.
package profiling

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upnp-cli/upnptoolkit/internal/netprobe"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
	"github.com/upnp-cli/upnptoolkit/internal/xmlnorm"
)

// DefaultConcurrency is the per-device SCPD fetch concurrency cap, per
// spec.md §4.3/§5.
const DefaultConcurrency = 8

// Config configures a single-device profiling run.
type Config struct {
	Timeout     time.Duration
	Concurrency int
	Logger      *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Result is the outcome of profiling one device.
type Result struct {
	Inventory  upnpmodel.ActionInventory
	Capability upnpmodel.CapabilitySummary
	Analysis   upnpmodel.ScpdAnalysis
}

var digits = regexp.MustCompile(`[0-9]+`)

// ServiceName derives a service's short name from the service-name token of
// its service type (the second-to-last URN token when the last one holds a
// version number, else the last token), lowercased, digits stripped. E.g.
// "urn:schemas-upnp-org:service:AVTransport:1" -> "avtransport".
func ServiceName(serviceType string) string {
	parts := strings.Split(serviceType, ":")
	if len(parts) == 0 {
		return strings.ToLower(serviceType)
	}
	last := parts[len(parts)-1]
	// The trailing token is usually the version number when the URN ends
	// "...:ServiceName:1"; prefer the second-to-last token in that case.
	if digits.MatchString(last) && len(parts) >= 2 {
		candidate := parts[len(parts)-2]
		if candidate != "service" {
			last = candidate
		}
	}
	name := digits.ReplaceAllString(last, "")
	return strings.ToLower(name)
}

// Profile fetches and parses every SCPD for device's services, fanning out
// bounded by cfg.Concurrency, and returns the aggregated inventory. The
// ActionInventory is a map keyed by service name, then action name, filled
// in the order the SCPD fetches complete; it carries no ordering, so neither
// the device's service-declaration order nor an SCPD's action order is
// preserved in the output.
func Profile(ctx context.Context, device upnpmodel.Device, cfg Config) Result {
	cfg = cfg.withDefaults()
	fetcher := netprobe.NewFetcher()

	type scpdResult struct {
		serviceName string
		serviceType string
		doc         upnpmodel.SCPDDocument
		err         error
	}

	sem := make(chan struct{}, cfg.Concurrency)
	resultsCh := make(chan scpdResult, len(device.Services))
	var wg sync.WaitGroup

	for _, svc := range device.Services {
		if svc.SCPDURL == "" {
			continue
		}
		svc := svc
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				resultsCh <- scpdResult{serviceName: ServiceName(svc.ServiceType), serviceType: svc.ServiceType, err: &upnpmodel.Error{Kind: upnpmodel.KindCanceled}}
				return
			}
			defer func() { <-sem }()

			data, _, err := fetcher.Get(ctx, svc.SCPDURL, hostPortOf(device), netprobe.FetcherOptions{Timeout: cfg.Timeout, VerifyTLS: true})
			if err != nil {
				resultsCh <- scpdResult{serviceName: ServiceName(svc.ServiceType), serviceType: svc.ServiceType, err: err}
				return
			}
			doc, err := xmlnorm.ParseSCPD(data, svc.ServiceType, svc.SCPDURL)
			resultsCh <- scpdResult{serviceName: ServiceName(svc.ServiceType), serviceType: svc.ServiceType, doc: doc, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	start := time.Now()
	inventory := upnpmodel.ActionInventory{}
	capability := upnpmodel.CapabilitySummary{}
	analysis := upnpmodel.ScpdAnalysis{}

	for r := range resultsCh {
		analysis.ServicesAnalyzed++
		if r.err != nil {
			analysis.ParsingErrors = append(analysis.ParsingErrors, fmt.Sprintf("%s: %v", r.serviceType, r.err))
			cfg.Logger.Debug("scpd fetch/parse failed", zap.String("service", r.serviceType), zap.Error(r.err))
			continue
		}
		analysis.SuccessfulParses++
		analysis.ParsingErrors = append(analysis.ParsingErrors, r.doc.ParseErrors...)

		actions := inventory[r.serviceName]
		if actions == nil {
			actions = map[string]upnpmodel.SoapAction{}
		}
		for name, action := range r.doc.Actions {
			actions[name] = action
			capability[action.Category]++
			analysis.TotalActions++
		}
		inventory[r.serviceName] = actions
	}
	analysis.Duration = time.Since(start)

	return Result{Inventory: inventory, Capability: capability, Analysis: analysis}
}

func hostPortOf(device upnpmodel.Device) string {
	return fmt.Sprintf("%s:%d", device.IP, device.Port)
}

// LookupService finds a device's Service record by its derived short name
// (per ServiceName), used by the Control Engine to resolve a qualified
// action name like "RenderingControl#SetVolume" to a control URL.
func LookupService(device upnpmodel.Device, serviceName string) (upnpmodel.Service, bool) {
	target := strings.ToLower(serviceName)
	for _, svc := range device.Services {
		if ServiceName(svc.ServiceType) == target {
			return svc, true
		}
	}
	return upnpmodel.Service{}, false
}

// FetchAction fetches and parses a single service's SCPD and returns the
// named action's declaration, letting the Control Engine build a
// correctly-ordered SOAP envelope without profiling every service on the
// device for a single invocation.
func FetchAction(ctx context.Context, device upnpmodel.Device, serviceName, actionName string, cfg Config) (upnpmodel.SoapAction, upnpmodel.Service, error) {
	cfg = cfg.withDefaults()

	svc, ok := LookupService(device, serviceName)
	if !ok {
		return upnpmodel.SoapAction{}, upnpmodel.Service{}, &upnpmodel.Error{Kind: upnpmodel.KindUnknownService, Message: serviceName}
	}

	fetcher := netprobe.NewFetcher()
	data, _, err := fetcher.Get(ctx, svc.SCPDURL, hostPortOf(device), netprobe.FetcherOptions{Timeout: cfg.Timeout, VerifyTLS: true})
	if err != nil {
		return upnpmodel.SoapAction{}, svc, err
	}

	doc, err := xmlnorm.ParseSCPD(data, svc.ServiceType, svc.SCPDURL)
	if err != nil {
		return upnpmodel.SoapAction{}, svc, err
	}

	action, ok := doc.Actions[actionName]
	if !ok {
		return upnpmodel.SoapAction{}, svc, &upnpmodel.Error{Kind: upnpmodel.KindUnknownAction, Message: actionName}
	}
	return action, svc, nil
}
