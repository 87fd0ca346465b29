package service

import (
	"strings"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
)

const (
	PrimaryURLMarker = "Primary named payload URL: "
	LegacyURLMarker  = "Legacy named payload URL: "
)

// ParseDryRunOutput extracts the payload URLs from dry-run stdout in one forward pass.
// Markers may appear anywhere in a line (the scripts prefix their own name); the rest of
// the line is the URL. A line holding the primary marker is never checked for the legacy
// one. When a marker repeats, the last occurrence wins, even if its value is empty.
func ParseDryRunOutput(stdout string) entity.ScriptDryRunResult {
	var result entity.ScriptDryRunResult

	for line := range strings.Lines(stdout) {
		if url, ok := valueAfter(line, PrimaryURLMarker); ok {
			result.PrimaryURL = url
			continue
		}
		if url, ok := valueAfter(line, LegacyURLMarker); ok {
			result.LegacyURL = url
		}
	}

	return result
}

func valueAfter(line, marker string) (string, bool) {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(line[idx+len(marker):]), true
}
