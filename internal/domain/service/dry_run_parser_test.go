package service

import (
	"strings"
	"testing"
)

func TestParseDryRunOutput(t *testing.T) {
	tests := []struct {
		name       string
		stdout     string
		wantPrim   string
		wantLegacy string
	}{
		{
			name: "script output",
			stdout: "dotnet-install: Payload URLs:\n" +
				"dotnet-install: Primary named payload URL: https://dotnetcli.azureedge.net/dotnet/Sdk/8.0.100/dotnet-sdk-8.0.100-linux-x64.tar.gz\n" +
				"dotnet-install: Legacy named payload URL: https://dotnetcli.azureedge.net/dotnet/Sdk/8.0.100/dotnet-dev-ubuntu-x64.8.0.100.tar.gz\r\n" +
				"dotnet-install: Repeatable invocation: ./dotnet-install.sh --version \"8.0.100\"\n",
			wantPrim:   "https://dotnetcli.azureedge.net/dotnet/Sdk/8.0.100/dotnet-sdk-8.0.100-linux-x64.tar.gz",
			wantLegacy: "https://dotnetcli.azureedge.net/dotnet/Sdk/8.0.100/dotnet-dev-ubuntu-x64.8.0.100.tar.gz",
		},
		{
			name:   "no markers",
			stdout: "nothing here\nstill nothing\n",
		},
		{
			name:   "empty",
			stdout: "",
		},
		{
			// Repeated markers keep the last value.
			name:     "last primary wins",
			stdout:   "Primary named payload URL: https://a\nother\nPrimary named payload URL: https://b\n",
			wantPrim: "https://b",
		},
		{
			name:       "legacy only",
			stdout:     "Legacy named payload URL: https://legacy\n",
			wantLegacy: "https://legacy",
		},
		{
			name:   "marker without value",
			stdout: "Primary named payload URL: \n",
		},
		{
			// An empty primary value clears an earlier one.
			name:       "empty primary clears earlier value",
			stdout:     "Primary named payload URL: https://a\nLegacy named payload URL: https://legacy\nPrimary named payload URL:   \n",
			wantLegacy: "https://legacy",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseDryRunOutput(tc.stdout)
			if got.PrimaryURL != tc.wantPrim {
				t.Errorf("PrimaryURL = %q, want %q", got.PrimaryURL, tc.wantPrim)
			}
			if got.LegacyURL != tc.wantLegacy {
				t.Errorf("LegacyURL = %q, want %q", got.LegacyURL, tc.wantLegacy)
			}
		})
	}
}

func TestParseDryRunOutputWithoutMarkersYieldsNothing(t *testing.T) {
	got := ParseDryRunOutput("a\nb\nc")
	if got.HasPrimary() || got.HasLegacy() {
		t.Fatalf("expected no urls, got %+v", got)
	}
}

func TestParseDryRunOutputSurvivesVeryLongLines(t *testing.T) {
	stdout := strings.Repeat("x", 2*1024*1024) + "\n" +
		"dotnet-install: Primary named payload URL: https://a\n" +
		strings.Repeat("y", 3*1024*1024) + "\n" +
		"dotnet-install: Legacy named payload URL: https://b"

	got := ParseDryRunOutput(stdout)
	if got.PrimaryURL != "https://a" {
		t.Errorf("PrimaryURL = %q, want %q", got.PrimaryURL, "https://a")
	}
	if got.LegacyURL != "https://b" {
		t.Errorf("LegacyURL = %q, want %q", got.LegacyURL, "https://b")
	}
}
