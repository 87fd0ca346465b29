package valueobject

import "testing"

func TestEnumValidation(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "monitoring", err: DetectedByMonitoring.Validate()},
		{name: "unknown detection", err: DetectionMethod("pager").Validate(), wantErr: true},
		{name: "both scripts", err: ImpactedBoth.Validate()},
		{name: "unknown script", err: ImpactedScript("cmd").Validate(), wantErr: true},
		{name: "website", err: RootCauseWebsite.Validate()},
		{name: "empty category", err: RootCauseCategory("").Validate(), wantErr: true},
		{name: "dry run kind", err: MonitorKindDryRun.Validate()},
		{name: "unknown kind", err: MonitorKind("ping").Validate(), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if (tc.err != nil) != tc.wantErr {
				t.Fatalf("unexpected validation result: %v", tc.err)
			}
		})
	}
}

func TestAlertStateIsAlerting(t *testing.T) {
	if !AlertStateAlerting.IsAlerting() {
		t.Fatal("alerting state must be alerting")
	}
	for _, s := range []AlertState{AlertStateOK, AlertStatePaused, AlertStatePending, AlertStateNoData} {
		if s.IsAlerting() {
			t.Fatalf("%s must not be alerting", s)
		}
	}
}
