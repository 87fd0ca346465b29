package scheduler

import "time"

type MonitorSnapshot struct {
	Name         string        `json:"name"`
	Kind         string        `json:"kind"`
	Target       string        `json:"target"`
	Schedule     string        `json:"schedule"`
	Disabled     bool          `json:"disabled"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	LastRunAt    time.Time     `json:"last_run_at"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastError    string        `json:"last_error,omitempty"`
	NextRunAt    time.Time     `json:"next_run_at"`
}

// Healthy reports whether the last run succeeded. A monitor that never ran is healthy.
func (m MonitorSnapshot) Healthy() bool {
	return m.LastError == ""
}

type Snapshot struct {
	StartedAt time.Time         `json:"started_at"`
	Running   bool              `json:"running"`
	Monitors  []MonitorSnapshot `json:"monitors"`
}

func (s Snapshot) Failing() []string {
	var names []string
	for _, m := range s.Monitors {
		if !m.Healthy() {
			names = append(names, m.Name)
		}
	}
	return names
}
