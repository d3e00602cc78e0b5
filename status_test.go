package pipeflow

import "testing"

func TestMergeStatus(t *testing.T) {
	tests := []struct {
		name string
		a, b Status
		want Status
	}{
		{"success and success", Success(), Success(), Success()},
		{"info replaces plain success", Success(), Info("note"), Info("note")},
		{"plain success keeps info", Info("note"), Success(), Info("note")},
		{"error after success", Success(), Errorf("bad"), Errorf("bad")},
		{"success after error", Errorf("bad"), Info("note"), Errorf("bad")},
		{"first error wins", Errorf("first"), Errorf("second"), Errorf("first")},
		{"pending after success", Info("note"), Pending("busy"), Pending("busy")},
		{"pending masks upstream error", Errorf("bad"), Pending("busy"), Pending("busy")},
		{"pending survives error", Pending("busy"), Errorf("bad"), Pending("busy")},
		{"first pending wins", Pending("one"), Pending("two"), Pending("one")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeStatus(tt.a, tt.b); got != tt.want {
				t.Errorf("MergeStatus(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestStatus_String(t *testing.T) {
	if got := Pending("busy").String(); got != "pending: busy" {
		t.Errorf("unexpected %q", got)
	}
	if got := Success().String(); got != "success" {
		t.Errorf("unexpected %q", got)
	}
}
