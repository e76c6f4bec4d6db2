package certutil

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateServerCert(t *testing.T) {
	opts := DefaultServerOptions("relay.local")
	opts.DNSNames = append(opts.DNSNames, "relay.example.com")
	opts.IPAddresses = append(opts.IPAddresses, net.ParseIP("192.168.1.100"))

	cert, err := GenerateServerCert(opts)
	if err != nil {
		t.Fatalf("GenerateServerCert failed: %v", err)
	}

	if cert.Certificate == nil {
		t.Fatal("Certificate is nil")
	}
	if cert.Certificate.Subject.CommonName != "relay.local" {
		t.Errorf("CommonName = %q, want %q", cert.Certificate.Subject.CommonName, "relay.local")
	}
	if len(cert.Certificate.DNSNames) != 3 {
		t.Errorf("DNSNames length = %d, want 3", len(cert.Certificate.DNSNames))
	}
	if len(cert.Certificate.IPAddresses) != 3 {
		t.Errorf("IPAddresses length = %d, want 3", len(cert.Certificate.IPAddresses))
	}

	// Self-signed: subject and issuer match.
	if cert.Certificate.Subject.String() != cert.Certificate.Issuer.String() {
		t.Error("self-signed cert should have matching subject and issuer")
	}
}

func TestSaveAndLoadCert(t *testing.T) {
	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "test.crt")
	keyPath := filepath.Join(tmpDir, "test.key")

	cert, err := GenerateServerCert(DefaultServerOptions("test"))
	if err != nil {
		t.Fatalf("GenerateServerCert failed: %v", err)
	}

	if err := cert.SaveToFiles(certPath, keyPath); err != nil {
		t.Fatalf("SaveToFiles failed: %v", err)
	}

	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		t.Error("certificate file not created")
	}
	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("Stat key file failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file permissions = %o, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadCert(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadCert failed: %v", err)
	}
	if loaded.Certificate.Subject.CommonName != cert.Certificate.Subject.CommonName {
		t.Error("loaded certificate CommonName mismatch")
	}
	if loaded.Fingerprint() != cert.Fingerprint() {
		t.Error("loaded certificate fingerprint mismatch")
	}
}

func TestFingerprint(t *testing.T) {
	cert, err := GenerateServerCert(DefaultServerOptions("fp-test"))
	if err != nil {
		t.Fatalf("GenerateServerCert failed: %v", err)
	}

	fp := cert.Fingerprint()
	if len(fp) < 10 || fp[:7] != "sha256:" {
		t.Errorf("fingerprint format invalid: %s", fp)
	}
	if fp2 := Fingerprint(cert.Certificate); fp != fp2 {
		t.Error("Fingerprint() methods return different values")
	}
}

func TestIsExpired(t *testing.T) {
	opts := DefaultServerOptions("short-lived")
	opts.ValidFor = 1 * time.Millisecond

	cert, err := GenerateServerCert(opts)
	if err != nil {
		t.Fatalf("GenerateServerCert failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if !IsExpired(cert.Certificate) {
		t.Error("certificate should be expired")
	}

	longLived, err := GenerateServerCert(DefaultServerOptions("long-lived"))
	if err != nil {
		t.Fatalf("GenerateServerCert failed: %v", err)
	}
	if IsExpired(longLived.Certificate) {
		t.Error("certificate should not be expired")
	}
}

func TestTLSCertificate(t *testing.T) {
	cert, err := GenerateServerCert(DefaultServerOptions("tls-test"))
	if err != nil {
		t.Fatalf("GenerateServerCert failed: %v", err)
	}

	tlsCert, err := cert.TLSCertificate()
	if err != nil {
		t.Fatalf("TLSCertificate failed: %v", err)
	}
	if tlsCert.PrivateKey == nil {
		t.Error("TLS certificate PrivateKey is nil")
	}
	if len(tlsCert.Certificate) == 0 {
		t.Error("TLS certificate has no certificate data")
	}
}

func TestParseCert(t *testing.T) {
	cert, err := GenerateServerCert(DefaultServerOptions("parse-test"))
	if err != nil {
		t.Fatalf("GenerateServerCert failed: %v", err)
	}

	parsed, err := ParseCert(cert.CertPEM, cert.KeyPEM)
	if err != nil {
		t.Fatalf("ParseCert failed: %v", err)
	}
	if parsed.Certificate.Subject.CommonName != cert.Certificate.Subject.CommonName {
		t.Error("parsed certificate CommonName mismatch")
	}
}
