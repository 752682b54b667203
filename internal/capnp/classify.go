package capnp

import (
	"strings"

	"capnls/internal/diag"
)

// hintSuffixes lists message endings the compiler uses for annotations that
// point back at the error printed just before them.
var hintSuffixes = []string{
	"originally used here",
}

// Classify returns the severity for an error-line message.
func Classify(msg string) diag.Severity {
	for _, suffix := range hintSuffixes {
		if strings.HasSuffix(msg, suffix) {
			return diag.SevHint
		}
	}
	return diag.SevError
}
