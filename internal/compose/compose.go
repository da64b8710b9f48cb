package compose

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/nmwangi/dukatrans/internal/vision"
)

var (
	maskColor = color.White
	textColor = color.Black
)

// Placement pairs a detected region with the text to draw in its place.
type Placement struct {
	Region vision.Region
	Text   string
}

// Render masks each region and draws the replacement text anchored at the
// region's first vertex. The input bytes are never mutated; the result is
// always PNG so repeated runs stay self-consistent. An empty placement list
// is the identity transform.
func Render(imageBytes []byte, placements []Placement) ([]byte, error) {
	if len(placements) == 0 {
		return imageBytes, nil
	}

	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	for _, p := range placements {
		rect, ok := boundingRect(p.Region.Vertices)
		if !ok {
			continue
		}
		rect = rect.Intersect(bounds)
		if rect.Empty() {
			continue
		}
		draw.Draw(canvas, rect, image.NewUniform(maskColor), image.Point{}, draw.Src)
		drawText(canvas, p.Region.Vertices[0], p.Text)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// boundingRect computes the axis-aligned bounding rectangle of a polygon.
func boundingRect(vertices []vision.Point) (image.Rectangle, bool) {
	if len(vertices) == 0 {
		return image.Rectangle{}, false
	}
	minX, minY := vertices[0].X, vertices[0].Y
	maxX, maxY := minX, minY
	for _, v := range vertices[1:] {
		minX = min(minX, v.X)
		minY = min(minY, v.Y)
		maxX = max(maxX, v.X)
		maxY = max(maxY, v.Y)
	}
	rect := image.Rect(minX, minY, maxX, maxY)
	return rect, !rect.Empty()
}

func drawText(dst *image.RGBA, anchor vision.Point, text string) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor),
		Face: face,
		// The anchor is the region's top-left vertex; the drawer wants the
		// baseline.
		Dot: fixed.P(anchor.X, anchor.Y+face.Ascent),
	}
	d.DrawString(text)
}
