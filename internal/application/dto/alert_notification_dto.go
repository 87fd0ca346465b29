package dto

import (
	"github.com/dreschagin/install-monitor/internal/domain/valueobject"
)

// MonitorNameTag is the evaluation tag that identifies the failing monitor.
const MonitorNameTag = "monitor_name"

// AlertNotificationDTO is the Grafana legacy alert webhook body.
type AlertNotificationDTO struct {
	Title       string                 `json:"title"`
	Message     *string                `json:"message"`
	OrgID       int64                  `json:"orgId"`
	PanelID     int64                  `json:"panelId"`
	DashboardID int64                  `json:"dashboardId"`
	RuleID      int64                  `json:"ruleId"`
	RuleName    string                 `json:"ruleName"`
	RuleURL     string                 `json:"ruleUrl"`
	State       valueobject.AlertState `json:"state" validate:"required"`
	Tags        map[string]string      `json:"tags"`
	EvalMatches []*AlertEvaluationDTO  `json:"evalMatches"`
}

// AlertEvaluationDTO is one matching series of the alert rule.
type AlertEvaluationDTO struct {
	Value  *float64          `json:"value"`
	Metric string            `json:"metric"`
	Tags   map[string]string `json:"tags"`
}

// MonitorName returns the monitor_name tag of the evaluation.
func (e *AlertEvaluationDTO) MonitorName() (string, bool) {
	if e == nil || e.Tags == nil {
		return "", false
	}
	name, ok := e.Tags[MonitorNameTag]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
