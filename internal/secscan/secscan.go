// Package secscan performs the toolkit's opt-in security sweep: TLS
// certificate analysis and RTSP stream discovery, grounded on the SSL/RTSP
// scanner supplement folded into the security-findings surface a
// TargetAssessment already reports through upnpmodel.SecurityFinding. It is
// invoked only when a caller explicitly asks for it, never as part of the
// default discovery/profiling path.
package secscan

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// commonRTSPPaths mirrors the fixed probe list a camera/media-renderer sweep
// checks; kept short since each entry costs one TCP round trip per device.
var commonRTSPPaths = []string{
	"/",
	"/stream",
	"/live",
	"/live.sdp",
	"/h264",
	"/cam1",
	"/onvif1",
	"/streaming/channels/1",
}

// Config bounds a scan's network behavior.
type Config struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// CertFinding is the parsed shape of one TLS certificate observation.
type CertFinding struct {
	Subject        string
	Issuer         string
	SelfSigned     bool
	Expired        bool
	WeakSignature  bool
	SignatureAlgo  string
}

// ScanTLS connects to host:port with certificate verification disabled (the
// point is to inspect whatever certificate is presented, not to validate
// trust) and reports the certificate shape a security review cares about:
// self-signed, expired, or a weak signature algorithm (MD5/SHA-1).
func ScanTLS(ctx context.Context, host string, port int, cfg Config) (*CertFinding, error) {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{Timeout: cfg.Timeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, &upnpmodel.Error{Kind: upnpmodel.KindNetworkUnreachable, Message: "dialing TLS target", Err: err}
	}
	defer rawConn.Close()

	conn := tls.Client(rawConn, &tls.Config{InsecureSkipVerify: true, ServerName: host})
	conn.SetDeadline(time.Now().Add(cfg.Timeout))
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, &upnpmodel.Error{Kind: upnpmodel.KindTlsFailure, Message: "TLS handshake failed", Err: err}
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, &upnpmodel.Error{Kind: upnpmodel.KindTlsFailure, Message: "no peer certificate presented"}
	}
	cert := certs[0]

	finding := &CertFinding{
		Subject:       cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		SelfSigned:    cert.Subject.String() == cert.Issuer.String(),
		Expired:       time.Now().After(cert.NotAfter),
		SignatureAlgo: cert.SignatureAlgorithm.String(),
	}
	switch cert.SignatureAlgorithm {
	case x509.MD5WithRSA, x509.SHA1WithRSA, x509.DSAWithSHA1, x509.ECDSAWithSHA1:
		finding.WeakSignature = true
	}
	return finding, nil
}

// RTSPStream is one path that answered an RTSP OPTIONS probe.
type RTSPStream struct {
	Path         string
	AuthRequired bool
}

// ScanRTSP probes host:port with an RTSP OPTIONS request against a fixed set
// of conventionally-used stream paths, returning every path that answered
// with 200 or 401 (present, but possibly credential-gated).
func ScanRTSP(ctx context.Context, host string, port int, cfg Config) []RTSPStream {
	cfg = cfg.withDefaults()
	var found []RTSPStream
	for _, path := range commonRTSPPaths {
		stream, ok := probeRTSPPath(ctx, host, port, path, cfg)
		if ok {
			found = append(found, stream)
		}
	}
	return found
}

func probeRTSPPath(ctx context.Context, host string, port int, path string, cfg Config) (RTSPStream, bool) {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return RTSPStream{}, false
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(cfg.Timeout))

	url := fmt.Sprintf("rtsp://%s:%d%s", host, port, path)
	request := fmt.Sprintf("OPTIONS %s RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: upnptoolkit-secscan/1.0\r\n\r\n", url)
	if _, err := conn.Write([]byte(request)); err != nil {
		return RTSPStream{}, false
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return RTSPStream{}, false
	}
	statusLine := strings.SplitN(string(buf[:n]), "\r\n", 2)[0]

	switch {
	case strings.Contains(statusLine, "200"):
		return RTSPStream{Path: path}, true
	case strings.Contains(statusLine, "401"):
		return RTSPStream{Path: path, AuthRequired: true}, true
	default:
		return RTSPStream{}, false
	}
}

// Findings converts a certificate observation and an RTSP stream list into
// the SecurityFinding shape a TargetAssessment reports, so callers can
// append the result of a scan directly onto an existing findings slice.
func Findings(cert *CertFinding, streams []RTSPStream) []upnpmodel.SecurityFinding {
	var findings []upnpmodel.SecurityFinding
	if cert != nil {
		if cert.SelfSigned {
			findings = append(findings, upnpmodel.SecurityFinding{Description: "TLS certificate is self-signed", Severity: "warning"})
		}
		if cert.Expired {
			findings = append(findings, upnpmodel.SecurityFinding{Description: "TLS certificate has expired", Severity: "warning"})
		}
		if cert.WeakSignature {
			findings = append(findings, upnpmodel.SecurityFinding{
				Description: fmt.Sprintf("TLS certificate uses a weak signature algorithm (%s)", cert.SignatureAlgo),
				Severity:    "warning",
			})
		}
	}
	for _, s := range streams {
		if s.AuthRequired {
			findings = append(findings, upnpmodel.SecurityFinding{
				Description: fmt.Sprintf("RTSP stream present at %s (credentials required)", s.Path),
				Severity:    "info",
			})
			continue
		}
		findings = append(findings, upnpmodel.SecurityFinding{
			Description: fmt.Sprintf("RTSP stream exposed without authentication at %s", s.Path),
			Severity:    "critical",
		})
	}
	return findings
}
