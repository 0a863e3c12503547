package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("socket closed")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", New(Camera, "device busy"), Camera},
		{"wrapped cause", Wrap(Detection, "run model", base), Detection},
		{"fmt-wrapped", fmt.Errorf("outer: %w", Wrap(Database, "commit", base)), Database},
		{"plain error", base, 0},
		{"nil", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("expected kind %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(Camera, "open", nil) != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrap(Camera, "grab frame", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is must see through the wrapper")
	}
	if !IsKind(err, Camera) {
		t.Error("IsKind must match the wrapper's kind")
	}
	if IsKind(err, Database) {
		t.Error("IsKind must not match a different kind")
	}
}

func TestErrorMessageIncludesKind(t *testing.T) {
	err := Wrap(Recognition, "embed region", errors.New("bad tensor"))
	msg := err.Error()
	for _, want := range []string{"recognition", "embed region", "bad tensor"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}
