package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name, written next to the locked files.
const ChecksumFile = ".checksums"

// ChecksumManifest maps file base names to their BLAKE3 hashes.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockReport describes the outcome of Lock.
type LockReport struct {
	ChecksumPath string
	Written      bool
	Files        map[string]string // base name -> hash
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}
	return nil
}

// Lock hashes files and merges them into the .checksums manifest in their
// directory. All files must share one directory. With dryRun nothing is written.
func Lock(files []string, dryRun bool) (*LockReport, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to lock")
	}
	dir := filepath.Dir(files[0])
	report := &LockReport{
		ChecksumPath: filepath.Join(dir, ChecksumFile),
		Files:        make(map[string]string, len(files)),
	}

	manifest, err := LoadChecksums(dir)
	if err != nil {
		manifest = &ChecksumManifest{Version: 1}
	}
	if manifest.Hashes == nil {
		manifest.Hashes = make(map[string]string)
	}
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	for _, f := range files {
		if filepath.Dir(f) != dir {
			return nil, fmt.Errorf("%s is not in %s; lock files per directory", f, dir)
		}
		hash, err := ComputeBlake3Hash(f)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", filepath.Base(f), err)
		}
		manifest.Hashes[filepath.Base(f)] = hash
		report.Files[filepath.Base(f)] = hash
	}

	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	// Restrictive permissions: the manifest is the trust anchor.
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the .checksums file from dir.
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checksums file not found (run 'relayd config lock')")
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// VerifyLocked checks path against the manifest in its directory.
func VerifyLocked(path string) error {
	manifest, err := LoadChecksums(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("verify %s: %w", filepath.Base(path), err)
	}
	expected, ok := manifest.Hashes[filepath.Base(path)]
	if !ok {
		return fmt.Errorf("%s has no hash in checksums (run 'relayd config lock')", filepath.Base(path))
	}
	if err := VerifyFileHash(path, expected); err != nil {
		return fmt.Errorf("credentials verification failed: %w\n"+
			"If you edited this file intentionally, run: relayd config lock", err)
	}
	return nil
}
