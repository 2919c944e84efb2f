package secscan

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestScanTLSDetectsSelfSigned(t *testing.T) {
	cert := selfSignedCert(t)
	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.(*tls.Conn).Handshake()
	}()

	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}

	finding, err := ScanTLS(context.Background(), host, port, Config{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("ScanTLS: %v", err)
	}
	if !finding.SelfSigned {
		t.Errorf("expected self-signed certificate to be detected")
	}
	if finding.Expired {
		t.Errorf("certificate should not be reported expired")
	}
}

func TestScanRTSPNoServerReturnsEmpty(t *testing.T) {
	// Nothing listening on this port: every probe should fail closed rather
	// than panic or block past its timeout.
	streams := ScanRTSP(context.Background(), "127.0.0.1", 1, Config{Timeout: 200 * time.Millisecond})
	if len(streams) != 0 {
		t.Errorf("expected no streams, got %v", streams)
	}
}

func TestFindingsMapsSeverities(t *testing.T) {
	cert := &CertFinding{SelfSigned: true, Expired: true, WeakSignature: true, SignatureAlgo: "SHA1-RSA"}
	streams := []RTSPStream{{Path: "/live"}, {Path: "/onvif1", AuthRequired: true}}

	findings := Findings(cert, streams)
	if len(findings) != 5 {
		t.Fatalf("expected 5 findings (3 cert + 2 rtsp), got %d: %v", len(findings), findings)
	}

	criticalCount := 0
	for _, f := range findings {
		if f.Severity == "critical" {
			criticalCount++
		}
	}
	if criticalCount != 1 {
		t.Errorf("expected exactly one critical finding for the unauthenticated stream, got %d", criticalCount)
	}
}
