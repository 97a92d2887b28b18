//go:build !linux

package storage

// detectFilesystemType reports an unknown filesystem, which is allowed.
func detectFilesystemType(string) (string, error) {
	return "", nil
}
