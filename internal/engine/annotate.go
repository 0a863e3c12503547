package engine

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var boxColor = color.RGBA{R: 0, G: 220, B: 64, A: 255}

// Annotate returns a copy of frame with the bounding box outlined and the
// label drawn above it. The input frame is never mutated.
func Annotate(frame image.Image, bbox [4]float32, label string) image.Image {
	bounds := frame.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, frame, bounds.Min, draw.Src)

	x1, y1 := int(bbox[0]), int(bbox[1])
	x2, y2 := int(bbox[2]), int(bbox[3])
	drawRect(out, x1, y1, x2, y2, 2)

	drawer := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(boxColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x1, y1-4),
	}
	if y1-basicfont.Face7x13.Height < bounds.Min.Y {
		drawer.Dot = fixed.P(x1, y2+basicfont.Face7x13.Height)
	}
	drawer.DrawString(label)

	return out
}

func drawRect(img *image.RGBA, x1, y1, x2, y2, thickness int) {
	for t := 0; t < thickness; t++ {
		drawHLine(img, x1, x2, y1+t)
		drawHLine(img, x1, x2, y2-t)
		drawVLine(img, y1, y2, x1+t)
		drawVLine(img, y1, y2, x2-t)
	}
}

func drawHLine(img *image.RGBA, x1, x2, y int) {
	for x := x1; x <= x2; x++ {
		if (image.Point{X: x, Y: y}).In(img.Bounds()) {
			img.SetRGBA(x, y, boxColor)
		}
	}
}

func drawVLine(img *image.RGBA, y1, y2, x int) {
	for y := y1; y <= y2; y++ {
		if (image.Point{X: x, Y: y}).In(img.Bounds()) {
			img.SetRGBA(x, y, boxColor)
		}
	}
}
