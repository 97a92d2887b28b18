package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestComputeBlake3HashStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	writeFile(t, path, "users: []\n")

	a, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatalf("ComputeBlake3Hash: %v", err)
	}
	b, _ := ComputeBlake3Hash(path)
	if a != b || len(a) != 64 {
		t.Fatalf("unexpected hashes %q %q", a, b)
	}

	if _, err := ComputeBlake3Hash(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLockThenVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	writeFile(t, path, "users:\n  - username: a\n")

	report, err := Lock([]string{path}, false)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !report.Written || report.Files["users.yaml"] == "" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if err := VerifyLocked(path); err != nil {
		t.Fatalf("VerifyLocked after lock: %v", err)
	}

	writeFile(t, path, "users:\n  - username: b\n")
	err = VerifyLocked(path)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
}

func TestLockDryRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	writeFile(t, path, "users: []\n")

	report, err := Lock([]string{path}, true)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if report.Written {
		t.Fatal("report.Written = true, want false in dry-run")
	}
	if _, err := os.Stat(filepath.Join(dir, ChecksumFile)); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestLockMergesExistingManifest(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	writeFile(t, a, "a: 1\n")
	writeFile(t, b, "b: 1\n")

	if _, err := Lock([]string{a}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := Lock([]string{b}, false); err != nil {
		t.Fatal(err)
	}
	m, err := LoadChecksums(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Hashes) != 2 {
		t.Fatalf("expected both files in manifest, got %v", m.Hashes)
	}
}

func TestLockErrors(t *testing.T) {
	if _, err := Lock(nil, false); err == nil {
		t.Fatal("expected error for no files")
	}
	if _, err := Lock([]string{filepath.Join(t.TempDir(), "a"), filepath.Join(t.TempDir(), "b")}, true); err == nil {
		t.Fatal("expected error for files in different directories")
	}
}

func TestVerifyLockedErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	writeFile(t, path, "users: []\n")

	if err := VerifyLocked(path); err == nil || !strings.Contains(err.Error(), "relayd config lock") {
		t.Fatalf("expected missing manifest hint, got %v", err)
	}

	writeFile(t, filepath.Join(dir, ChecksumFile), "version: 1\nhashes:\n  other.yaml: abc\n")
	if err := VerifyLocked(path); err == nil || !strings.Contains(err.Error(), "no hash") {
		t.Fatalf("expected no-hash error, got %v", err)
	}

	writeFile(t, filepath.Join(dir, ChecksumFile), "version: 2\n")
	if err := VerifyLocked(path); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected version error, got %v", err)
	}
}
