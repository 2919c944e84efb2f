package netprobe

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"github.com/endobit/oui"
)

var (
	macPattern        = regexp.MustCompile(`(?i)([0-9a-f]{2}[:-]){5}([0-9a-f]{2})`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ARPHint is a host's MAC address and resolved vendor, used to prioritize
// the Discovery Engine's port sweep toward hosts the kernel already has an
// ARP entry for.
type ARPHint struct {
	Host   string
	MAC    string
	Vendor string
}

// ARPTable reads the local ARP cache and returns a hint per entry found.
// Tries /proc/net/arp first, falling back to the arp command, mirroring the
// teacher's lookupMACFromProc/lookupMACViaARPCommand pair.
func ARPTable(ctx context.Context) map[string]ARPHint {
	hints := arpTableFromProc()
	if len(hints) > 0 {
		return hints
	}
	return arpTableFromCommand(ctx)
}

func arpTableFromProc() map[string]ARPHint {
	data, err := os.ReadFile("/proc/net/arp")
	if err != nil {
		return nil
	}

	hints := map[string]ARPHint{}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[1:] {
		fields := whitespacePattern.Split(strings.TrimSpace(line), -1)
		if len(fields) < 4 {
			continue
		}
		host := fields[0]
		mac := normalizeMAC(fields[3])
		if mac == "" {
			continue
		}
		hints[host] = ARPHint{Host: host, MAC: mac, Vendor: lookupVendor(mac)}
	}
	return hints
}

func arpTableFromCommand(ctx context.Context) map[string]ARPHint {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "arp", "-a")
	} else {
		cmd = exec.CommandContext(ctx, "arp", "-n")
	}
	output, err := cmd.Output()
	if err != nil {
		return nil
	}

	hints := map[string]ARPHint{}
	for _, line := range strings.Split(string(output), "\n") {
		fields := whitespacePattern.Split(strings.TrimSpace(line), -1)
		if len(fields) == 0 {
			continue
		}
		host := strings.Trim(fields[0], "()")
		mac := normalizeMAC(macPattern.FindString(line))
		if mac == "" {
			continue
		}
		hints[host] = ARPHint{Host: host, MAC: mac, Vendor: lookupVendor(mac)}
	}
	return hints
}

func normalizeMAC(raw string) string {
	if raw == "" {
		return ""
	}
	raw = strings.ToUpper(strings.NewReplacer("-", ":", ".", ":").Replace(raw))
	match := macPattern.FindString(raw)
	if match == "" {
		return ""
	}
	parts := strings.Split(match, ":")
	if len(parts) != 6 {
		return ""
	}
	for i := range parts {
		if len(parts[i]) == 1 {
			parts[i] = "0" + parts[i]
		}
	}
	return strings.Join(parts, ":")
}

func lookupVendor(mac string) string {
	if mac == "" {
		return ""
	}
	if vendor := oui.Vendor(strings.ToLower(mac)); vendor != "" {
		return vendor
	}
	return "Unknown"
}
