package audit

import "testing"

func TestRiskScore(t *testing.T) {
	cases := []struct {
		name    string
		status  Status
		details map[string]any
		want    int
	}{
		{"failed base", StatusFailed, nil, 10},
		{"failed many attempts", StatusFailed, map[string]any{"attempts": 4}, 30},
		{"failed new device", StatusFailed, map[string]any{"new_device": true}, 25},
		{"blocked", StatusBlocked, nil, 90},
		{"success base", StatusSuccess, nil, 0},
		{"success location change", StatusSuccess, map[string]any{"location_change": true}, 25},
		{"pending", StatusPending, nil, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RiskScore(tc.status, tc.details)
			if got != tc.want {
				t.Fatalf("RiskScore(%v, %v) = %d, want %d", tc.status, tc.details, got, tc.want)
			}
		})
	}
}
