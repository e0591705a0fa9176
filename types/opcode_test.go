package types //nolint:revive // types is a valid package name

import "testing"

func TestOpcode_CacheableImpliesReply(t *testing.T) {
	for _, op := range Opcodes() {
		if op.Cacheable() && !op.ExpectsReply() {
			t.Errorf("%s is cacheable but expects no reply", op)
		}
		if op.Destroys() && op.ExpectsReply() {
			t.Errorf("%s destroys its target but expects a reply", op)
		}
	}
}

func TestOpcode_Ordering(t *testing.T) {
	ops := Opcodes()
	for i := 1; i < len(ops); i++ {
		if ops[i-1] >= ops[i] {
			t.Fatalf("Opcodes() not ascending at %d: %s >= %s", i, ops[i-1], ops[i])
		}
	}
	if ops[0] != OpPing {
		t.Errorf("first opcode = %s, want Ping", ops[0])
	}
}

func TestOpcode_UnknownString(t *testing.T) {
	op := Opcode(0x7777)
	if op.Known() {
		t.Fatal("0x7777 should not be known")
	}
	if got := op.String(); got != "Opcode(0x7777)" {
		t.Errorf("String() = %q", got)
	}
}

func TestStatus_Failed(t *testing.T) {
	tests := []struct {
		status Status
		failed bool
	}{
		{StatusOK, false},
		{StatusFalse, false},
		{StatusFail, true},
		{StatusDeviceLost, true},
		{StatusInvalidCall, true},
	}
	for _, tt := range tests {
		if got := tt.status.Failed(); got != tt.failed {
			t.Errorf("%s.Failed() = %v, want %v", tt.status, got, tt.failed)
		}
	}
	deviceLost := StatusDeviceLost
	if uint32(deviceLost) != 0x88760868 {
		t.Errorf("StatusDeviceLost = %#x", uint32(deviceLost))
	}
}

func TestForwardPolicy_Allows(t *testing.T) {
	tests := []struct {
		policy   ForwardPolicy
		active   bool
		inactive bool
	}{
		{ForwardNever, false, false},
		{ForwardOnlyWhenOverlayActive, true, false},
		{ForwardOnlyWhenOverlayInactive, false, true},
		{ForwardAlways, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			if got := tt.policy.Allows(true); got != tt.active {
				t.Errorf("Allows(true) = %v, want %v", got, tt.active)
			}
			if got := tt.policy.Allows(false); got != tt.inactive {
				t.Errorf("Allows(false) = %v, want %v", got, tt.inactive)
			}
		})
	}
}

func TestParseForwardPolicy(t *testing.T) {
	for _, p := range []ForwardPolicy{ForwardNever, ForwardOnlyWhenOverlayActive, ForwardOnlyWhenOverlayInactive, ForwardAlways} {
		got, err := ParseForwardPolicy(p.String())
		if err != nil {
			t.Fatalf("ParseForwardPolicy(%q): %v", p, err)
		}
		if got != p {
			t.Errorf("ParseForwardPolicy(%q) = %v", p, got)
		}
	}
	if _, err := ParseForwardPolicy("sometimes"); err == nil {
		t.Error("expected error for invalid policy")
	}
}
