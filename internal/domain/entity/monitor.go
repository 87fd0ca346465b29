package entity

import (
	"fmt"

	"github.com/dreschagin/install-monitor/internal/domain/valueobject"
)

// DefaultMonitorSchedule runs a monitor every 30 minutes (cron with seconds).
const DefaultMonitorSchedule = "0 */30 * * * *"

// Monitor is one scheduled probe definition.
type Monitor struct {
	Name     string                  `yaml:"name" json:"name" validate:"required"`
	Kind     valueobject.MonitorKind `yaml:"kind" json:"kind" validate:"required,oneof=url dry_run"`
	URL      string                  `yaml:"url" json:"url,omitempty" validate:"required_if=Kind url"`
	Args     string                  `yaml:"args" json:"args,omitempty"`
	Schedule string                  `yaml:"schedule" json:"schedule"`
	Disabled bool                    `yaml:"disabled" json:"disabled,omitempty"`
}

// DefaultMonitors is used when no monitors file is configured.
func DefaultMonitors() []Monitor {
	return []Monitor{
		{Name: "download_ps1", Kind: valueobject.MonitorKindURL, URL: "https://dot.net/v1/dotnet-install.ps1", Schedule: DefaultMonitorSchedule},
		{Name: "download_sh", Kind: valueobject.MonitorKindURL, URL: "https://dot.net/v1/dotnet-install.sh", Schedule: DefaultMonitorSchedule},
		{Name: "dry_run_LTS", Kind: valueobject.MonitorKindDryRun, Args: "-c LTS", Schedule: DefaultMonitorSchedule},
		{Name: "dry_run_3_1", Kind: valueobject.MonitorKindDryRun, Args: "-c 3.1", Schedule: DefaultMonitorSchedule},
		{Name: "dry_run_3_0_runtime", Kind: valueobject.MonitorKindDryRun, Args: "-c 3.0 -Runtime dotnet", Schedule: DefaultMonitorSchedule},
	}
}

func (m Monitor) String() string {
	if m.Kind == valueobject.MonitorKindURL {
		return fmt.Sprintf("%s (%s %s)", m.Name, m.Kind, m.URL)
	}
	return fmt.Sprintf("%s (%s %s)", m.Name, m.Kind, m.Args)
}
