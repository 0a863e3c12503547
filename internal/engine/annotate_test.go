package engine

import (
	"image"
	"image/color"
	"testing"
)

func TestAnnotateDrawsBoxWithoutMutatingInput(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			frame.SetRGBA(x, y, color.RGBA{A: 255})
		}
	}

	out := Annotate(frame, [4]float32{20, 20, 60, 60}, "alice (0.87)")

	// Box edge is drawn on the output.
	r, g, b, _ := out.At(40, 20).RGBA()
	if uint8(r>>8) != boxColor.R || uint8(g>>8) != boxColor.G || uint8(b>>8) != boxColor.B {
		t.Errorf("expected box color on top edge, got (%d, %d, %d)", r>>8, g>>8, b>>8)
	}

	// Source frame stays black.
	r, g, b, _ = frame.At(40, 20).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Error("input frame must not be mutated")
	}
}

func TestAnnotateBoxAtFrameEdge(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 64, 64))
	// Label would land above the frame; it must be moved below the box
	// rather than dropped outside the bounds.
	out := Annotate(frame, [4]float32{0, 0, 30, 30}, "bob")
	if out.Bounds() != frame.Bounds() {
		t.Errorf("expected unchanged bounds, got %v", out.Bounds())
	}
}
