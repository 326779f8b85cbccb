package camera

import "testing"

func TestInferFacing(t *testing.T) {
	tests := []struct {
		label  string
		want   Facing
		wantOK bool
	}{
		{"Front Camera", FacingFront, true},
		{"camera2 1, facing user", FacingFront, true},
		{"Back Camera", FacingBack, true},
		{"camera2 0, facing environment", FacingBack, true},
		{"Rear Wide", FacingBack, true},
		{"HD Pro Webcam C920", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := InferFacing(tt.label)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("InferFacing(%q) = (%q, %v), want (%q, %v)", tt.label, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFacing_Opposite(t *testing.T) {
	if FacingFront.Opposite() != FacingBack {
		t.Error("Expected front to flip to back")
	}
	if FacingBack.Opposite() != FacingFront {
		t.Error("Expected back to flip to front")
	}
}
