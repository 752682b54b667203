package lsp

import (
	"path/filepath"

	"capnls/internal/capnp"
)

// uriToPath resolves a file URI to an absolute local path, or "" when the
// URI cannot name a local directory.
func uriToPath(uri string) string {
	if uri == "" {
		return ""
	}
	path, err := capnp.DocumentPath(uri)
	if err != nil {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}
