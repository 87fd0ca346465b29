package valueobject

import "fmt"

// MonitorKind selects which probe a scheduled monitor runs.
type MonitorKind string

const (
	// MonitorKindURL issues a GET against a fixed URL.
	MonitorKindURL MonitorKind = "url"
	// MonitorKindDryRun runs the install script with -DryRun and checks the primary URL it reports.
	MonitorKindDryRun MonitorKind = "dry_run"
)

func (k MonitorKind) Validate() error {
	switch k {
	case MonitorKindURL, MonitorKindDryRun:
		return nil
	default:
		return fmt.Errorf("invalid monitor kind %q", string(k))
	}
}

func (k MonitorKind) String() string {
	return string(k)
}
