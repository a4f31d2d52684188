package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// shortHash returns a short hex digest of s, used to disambiguate local
// download filenames that share a basename but came from different remote
// directories.
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:10]
}

// resolveUnderRoot joins root and rel, rejecting any path that escapes root
// via "..", so download_file cannot be used to read arbitrary filesystem
// paths on the server.
func resolveUnderRoot(root, rel string) (string, error) {
	cleanRoot := filepath.Clean(root)
	full := filepath.Clean(filepath.Join(cleanRoot, rel))
	if full != cleanRoot && !strings.HasPrefix(full, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("rpc: path %q escapes download root", rel)
	}
	return full, nil
}
