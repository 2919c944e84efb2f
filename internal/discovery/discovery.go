// Package discovery implements the Discovery Engine: concurrent SSDP
// multicast search plus an ARP-hinted TCP port sweep and description fetch,
// producing a deduplicated device list per spec.md §4.1.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upnp-cli/upnptoolkit/internal/netprobe"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
	"github.com/upnp-cli/upnptoolkit/internal/xmlnorm"
)

// DefaultPorts is the port set the aggressive port sweep probes, per
// spec.md §4.1.
var DefaultPorts = []int{80, 443, 1400, 7000, 8008, 8060, 8443, 9080, 49200}

// searchTargets is the set of SSDP search targets sent concurrently, per
// spec.md §4.1: rootdevice, everything, and DIAL for Cast/DIAL endpoints.
var searchTargets = []string{
	"upnp:rootdevice",
	"ssdp:all",
	"urn:dial-multiscreen-org:service:dial:1",
}

// descriptionPaths are the candidate description URLs tried against a
// port-scan hit, in order; only the first 200 response is used, per
// spec.md §4.1 step 2.
var descriptionPaths = []string{"/xml/device_description.xml", "/description.xml"}

// Config configures one Discovery Engine run.
type Config struct {
	CIDR              string
	Timeout           time.Duration
	Aggressive        bool
	Ports             []int
	SweepConcurrency  int
	FetchConcurrency  int
	Logger            *zap.Logger
}

// Result is the outcome of a Discovery Engine run: the deduplicated device
// list, ordered by IP then port, plus any per-endpoint errors collected
// along the way (never fatal to the call).
type Result struct {
	Devices []upnpmodel.Device
	Errors  []string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if len(c.Ports) == 0 {
		c.Ports = DefaultPorts
	}
	if c.SweepConcurrency <= 0 {
		c.SweepConcurrency = 256
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 32
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Run performs SSDP search, an optional port sweep, description fetch, and
// the two-level dedup pass, returning a deduplicated device list. It fails
// the whole call only if the local interface/CIDR cannot be determined;
// every other failure is collected into Result.Errors and skipped.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()

	cidr := cfg.CIDR
	if cidr == "" {
		detected, err := DefaultCIDR()
		if err != nil {
			return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindNetworkUnreachable, Message: "could not determine local interface", Err: err}
		}
		cidr = detected
	}

	fetcher := netprobe.NewFetcher()
	var errs errCollector

	candidates := ssdpPhase(ctx, cfg, &errs)
	if cfg.Aggressive {
		hosts, err := hostsInCIDR(cidr)
		if err != nil {
			return Result{}, &upnpmodel.Error{Kind: upnpmodel.KindNetworkUnreachable, Message: "expanding CIDR " + cidr, Err: err}
		}
		sweepCandidates := portSweepPhase(ctx, cfg, hosts, fetcher, &errs)
		candidates = append(candidates, sweepCandidates...)
	}

	devices := fetchPhase(ctx, cfg, candidates, fetcher, &errs)

	deduped := dedup(devices)
	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].IP != deduped[j].IP {
			return lessIP(deduped[i].IP, deduped[j].IP)
		}
		return deduped[i].Port < deduped[j].Port
	})

	return Result{Devices: deduped, Errors: errs.list()}, nil
}

// candidate is one description URL to fetch, tagged with the discovery
// method that produced it and any SSDP headers already known.
type candidate struct {
	location  string
	method    upnpmodel.DiscoveryMethod
	headers   map[string]string
	arpVendor string
}

func ssdpPhase(ctx context.Context, cfg Config, errs *errCollector) []candidate {
	responses, err := netprobe.SSDPSearch(ctx, searchTargets, cfg.Timeout)
	if err != nil {
		errs.add("ssdp search: " + err.Error())
		return nil
	}

	seen := map[string]bool{}
	var out []candidate
	for _, r := range responses {
		loc := r.Headers["LOCATION"]
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		out = append(out, candidate{location: loc, method: upnpmodel.DiscoverySSDP, headers: r.Headers})
	}

	cfg.Logger.Debug("ssdp phase complete", zap.Int("responses", len(responses)), zap.Int("unique_locations", len(out)))
	return out
}

func portSweepPhase(ctx context.Context, cfg Config, hosts []string, fetcher *netprobe.Fetcher, errs *errCollector) []candidate {
	if len(hosts) == 0 {
		return nil
	}

	arpHints := netprobe.ARPTable(ctx)
	orderedHosts := prioritizeByARP(hosts, arpHints)

	sweepResults := netprobe.TCPSweep(ctx, orderedHosts, cfg.Ports, cfg.SweepConcurrency, 2*time.Second)

	var mu sync.Mutex
	var out []candidate
	var wg sync.WaitGroup

	sem := make(chan struct{}, cfg.FetchConcurrency)
	for _, r := range sweepResults {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			loc, ok := tryDescriptionURLs(ctx, fetcher, r.Host, r.Port)
			if !ok {
				return
			}
			vendor := arpHints[r.Host].Vendor
			if vendor == "Unknown" {
				vendor = ""
			}
			mu.Lock()
			out = append(out, candidate{location: loc, method: upnpmodel.DiscoveryPortScan, arpVendor: vendor})
			mu.Unlock()
		}()
	}
	wg.Wait()

	cfg.Logger.Debug("port sweep phase complete", zap.Int("hits", len(sweepResults)), zap.Int("descriptions_found", len(out)))
	return out
}

// tryDescriptionURLs probes each candidate description path against
// host:port in order and returns the first one that responds 200. At most
// one description URL is used per endpoint, per spec.md §4.1's
// duplicate-explosion note.
func tryDescriptionURLs(ctx context.Context, fetcher *netprobe.Fetcher, host string, port int) (string, bool) {
	hostPort := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	for _, path := range descriptionPaths {
		u := fmt.Sprintf("http://%s%s", hostPort, path)
		_, _, err := fetcher.Get(ctx, u, hostPort, netprobe.FetcherOptions{Timeout: 5 * time.Second, VerifyTLS: true})
		if err == nil {
			return u, true
		}
	}
	return "", false
}

func fetchPhase(ctx context.Context, cfg Config, candidates []candidate, fetcher *netprobe.Fetcher, errs *errCollector) []upnpmodel.Device {
	sem := make(chan struct{}, cfg.FetchConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var devices []upnpmodel.Device

	for _, c := range candidates {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			device, err := fetchDescription(ctx, fetcher, c)
			if err != nil {
				mu.Lock()
				errs.add(fmt.Sprintf("fetch %s: %v", c.location, err))
				mu.Unlock()
				return
			}
			mu.Lock()
			devices = append(devices, device)
			mu.Unlock()
		}()
	}
	wg.Wait()

	cfg.Logger.Debug("description fetch phase complete", zap.Int("candidates", len(candidates)), zap.Int("devices", len(devices)))
	return devices
}

func fetchDescription(ctx context.Context, fetcher *netprobe.Fetcher, c candidate) (upnpmodel.Device, error) {
	parsed, err := url.Parse(c.location)
	if err != nil {
		return upnpmodel.Device{}, err
	}

	data, server, err := fetcher.Get(ctx, c.location, parsed.Host, netprobe.FetcherOptions{Timeout: 5 * time.Second, VerifyTLS: true})
	if err != nil {
		return upnpmodel.Device{}, err
	}

	device, err := xmlnorm.ParseDeviceDescription(data, c.location)
	if err != nil {
		return upnpmodel.Device{}, err
	}

	host, portStr, splitErr := net.SplitHostPort(parsed.Host)
	if splitErr != nil {
		host = parsed.Host
		portStr = defaultPortFor(parsed.Scheme)
	}
	device.IP = host
	fmt.Sscanf(portStr, "%d", &device.Port)
	device.DiscoveryMethod = c.method
	device.ServerHeader = server
	device.RawSSDPHeaders = c.headers
	if s := c.headers["SERVER"]; s != "" {
		device.ServerHeader = s
	}
	device.Manufacturer = enrichManufacturer(device.Manufacturer, c.arpVendor)
	now := time.Now()
	device.FirstSeen = now
	device.LastSeen = now

	return device, nil
}

// enrichManufacturer fills in Manufacturer from an ARP-resolved OUI vendor
// when the device description didn't carry one, per SPEC_FULL.md §10's
// wiring for github.com/endobit/oui.
func enrichManufacturer(manufacturer, arpVendor string) string {
	if manufacturer != "" || arpVendor == "" {
		return manufacturer
	}
	return arpVendor
}

func defaultPortFor(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// dedup applies the identity merge rule of spec.md §3: two records that
// resolve to the same identity are merged, later data winning per field
// except discovery_method, which prefers "ssdp" over "port_scan".
func dedup(devices []upnpmodel.Device) []upnpmodel.Device {
	order := make([]upnpmodel.Identity, 0, len(devices))
	byIdentity := make(map[upnpmodel.Identity]upnpmodel.Device, len(devices))

	for _, d := range devices {
		id := upnpmodel.IdentityOf(d)
		if existing, ok := byIdentity[id]; ok {
			byIdentity[id] = upnpmodel.Merge(existing, d)
			continue
		}
		byIdentity[id] = d
		order = append(order, id)
	}

	out := make([]upnpmodel.Device, 0, len(order))
	for _, id := range order {
		out = append(out, byIdentity[id])
	}
	return out
}

// prioritizeByARP sorts hosts so that ones with an existing ARP entry are
// swept first, without skipping any host, matching the "prioritize sweep
// order... without skipping any CIDR host" contract of SPEC_FULL.md §4.1.
func prioritizeByARP(hosts []string, hints map[string]netprobe.ARPHint) []string {
	known := make([]string, 0, len(hosts))
	unknown := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if _, ok := hints[h]; ok {
			known = append(known, h)
		} else {
			unknown = append(unknown, h)
		}
	}
	return append(known, unknown...)
}

// hostsInCIDR enumerates every host address in cidr, skipping the network
// and broadcast addresses. A /31 or /32 has neither, so every address in it
// is returned.
func hostsInCIDR(cidr string) ([]string, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	ipv4 := ip.To4()
	if ipv4 == nil {
		return nil, fmt.Errorf("only IPv4 CIDR ranges are supported: %s", cidr)
	}

	var hosts []string
	network := ipv4.Mask(ipNet.Mask)
	broadcast := broadcastAddr(network, ipNet.Mask)
	ones, bits := ipNet.Mask.Size()
	keepAll := bits-ones <= 1

	for cur := cloneIP(network); ipNet.Contains(cur); incrementIP(cur) {
		s := cur.String()
		if !keepAll && (s == network.String() || s == broadcast.String()) {
			continue
		}
		hosts = append(hosts, s)
	}
	return hosts, nil
}

func broadcastAddr(network net.IP, mask net.IPMask) net.IP {
	b := cloneIP(network)
	for i := range b {
		b[i] |= ^mask[i]
	}
	return b
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

func incrementIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] != 0 {
			break
		}
	}
}

func lessIP(a, b string) bool {
	ipA := net.ParseIP(a).To4()
	ipB := net.ParseIP(b).To4()
	if ipA == nil || ipB == nil {
		return a < b
	}
	for i := range ipA {
		if ipA[i] != ipB[i] {
			return ipA[i] < ipB[i]
		}
	}
	return false
}

// errCollector accumulates non-fatal per-endpoint errors under a mutex.
type errCollector struct {
	mu   sync.Mutex
	errs []string
}

func (e *errCollector) add(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, msg)
}

func (e *errCollector) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs
}

// DefaultCIDR auto-detects the host's default IPv4 interface and returns
// its network in CIDR form.
func DefaultCIDR() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			return ipNet.String(), nil
		}
	}
	return "", fmt.Errorf("no usable IPv4 interface found")
}
