package entity

import "strings"

// ScriptExecutionResult is the captured output of one install script run.
type ScriptExecutionResult struct {
	ScriptName string
	Args       string
	Stdout     string
	Stderr     string
}

// Failed reports whether the script wrote anything to stderr.
// The exit code is not consulted.
func (r ScriptExecutionResult) Failed() bool {
	return strings.TrimSpace(r.Stderr) != ""
}

// ScriptDryRunResult holds the payload URLs reported by a -DryRun execution.
// An empty field means the script did not report that URL.
type ScriptDryRunResult struct {
	PrimaryURL string
	LegacyURL  string
}

func (r ScriptDryRunResult) HasPrimary() bool {
	return r.PrimaryURL != ""
}

func (r ScriptDryRunResult) HasLegacy() bool {
	return r.LegacyURL != ""
}
