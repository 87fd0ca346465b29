package valueobject

// AlertState is the Grafana legacy alert rule state.
type AlertState string

const (
	AlertStateOK       AlertState = "ok"
	AlertStatePaused   AlertState = "paused"
	AlertStateAlerting AlertState = "alerting"
	AlertStatePending  AlertState = "pending"
	AlertStateNoData   AlertState = "no_data"
)

func (s AlertState) String() string {
	return string(s)
}

// IsAlerting reports whether the state should open incidents.
func (s AlertState) IsAlerting() bool {
	return s == AlertStateAlerting
}
