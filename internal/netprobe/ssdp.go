// Package netprobe implements the low-level network transports the
// Discovery and Control engines build on: SSDP multicast search, a bounded
// TCP port sweep, and a stealth-capable HTTP fetcher.
package netprobe

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

const (
	ssdpMulticastAddr = "239.255.255.250"
	ssdpPort          = 1900
	ssdpMX            = 3
)

// SSDPResponse is one M-SEARCH reply, keyed by the responding address.
type SSDPResponse struct {
	Addr    string
	Headers map[string]string
}

// SSDPSearch sends one M-SEARCH per search target over a single UDP socket
// and collects replies until timeout elapses or ctx is cancelled, rather
// than opening a socket per target.
func SSDPSearch(ctx context.Context, searchTargets []string, timeout time.Duration) ([]SSDPResponse, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, &upnpmodel.Error{Kind: upnpmodel.KindNetworkUnreachable, Message: "opening SSDP socket", Err: err}
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: net.ParseIP(ssdpMulticastAddr), Port: ssdpPort}

	for _, st := range searchTargets {
		msg := buildSearchRequest(st)
		if _, err := conn.WriteTo([]byte(msg), dst); err != nil {
			return nil, &upnpmodel.Error{Kind: upnpmodel.KindNetworkUnreachable, Message: "sending M-SEARCH for " + st, Err: err}
		}
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetReadDeadline(deadline)

	var responses []SSDPResponse
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return responses, nil
		default:
		}

		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			// Read deadline exceeded ends collection, not an error.
			return responses, nil
		}

		headers, ok := parseSSDPResponse(string(buf[:n]))
		if !ok {
			continue
		}
		responses = append(responses, SSDPResponse{Addr: addr.String(), Headers: headers})
	}
}

func buildSearchRequest(searchTarget string) string {
	return strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		fmt.Sprintf("HOST: %s:%d", ssdpMulticastAddr, ssdpPort),
		`MAN: "ssdp:discover"`,
		fmt.Sprintf("ST: %s", searchTarget),
		fmt.Sprintf("MX: %d", ssdpMX),
		"USER-AGENT: upnp-toolkit/1.0",
		"", "",
	}, "\r\n")
}

// parseSSDPResponse parses the HTTP-ish status line and header block of an
// M-SEARCH reply. A response with no LOCATION header is not a device
// advertisement and is discarded by the caller.
func parseSSDPResponse(raw string) (map[string]string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	if !scanner.Scan() {
		return nil, false
	}
	status := scanner.Text()
	if !strings.Contains(strings.ToUpper(status), "200 OK") {
		return nil, false
	}

	headers := map[string]string{}
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		headers[key] = value
	}

	if _, ok := headers["LOCATION"]; !ok {
		return nil, false
	}
	return headers, true
}
