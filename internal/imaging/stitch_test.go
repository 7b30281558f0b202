package imaging

import (
	"image/color"
	"testing"
)

func TestStitchCanvasDimensions(t *testing.T) {
	red := solidPayload(t, 100, 50, color.RGBA{255, 0, 0, 255})
	blue := solidPayload(t, 100, 50, color.RGBA{0, 0, 255, 255})

	canvas, diags, err := Stitch([]Part{
		{Payload: red, YOffset: 0},
		{Payload: blue, YOffset: 50},
	}, 100, 100)
	if err != nil {
		t.Fatalf("stitch failed: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("expected no diagnostics, got %v", diags)
	}
	if canvas.Bounds().Dx() != 100 || canvas.Bounds().Dy() != 100 {
		t.Fatalf("expected 100x100 canvas, got %dx%d", canvas.Bounds().Dx(), canvas.Bounds().Dy())
	}

	if got := canvas.RGBAAt(10, 10); got.R != 255 || got.B != 0 {
		t.Errorf("expected red at (10,10), got %v", got)
	}
	if got := canvas.RGBAAt(10, 75); got.B != 255 || got.R != 0 {
		t.Errorf("expected blue at (10,75), got %v", got)
	}
}

func TestStitchClipsOverhangingPart(t *testing.T) {
	tall := solidPayload(t, 100, 80, color.RGBA{0, 255, 0, 255})

	canvas, _, err := Stitch([]Part{{Payload: tall, YOffset: 60}}, 100, 100)
	if err != nil {
		t.Fatalf("stitch failed: %v", err)
	}
	// Rows 60..99 are green; the remaining 40 source rows are clipped away.
	if got := canvas.RGBAAt(50, 99); got.G != 255 {
		t.Errorf("expected green at (50,99), got %v", got)
	}
	if got := canvas.RGBAAt(50, 59); got.R != 255 || got.G != 255 || got.B != 255 {
		t.Errorf("expected white above the part, got %v", got)
	}
}

func TestStitchSkipsPartBeyondCanvas(t *testing.T) {
	part := solidPayload(t, 100, 50, color.RGBA{0, 255, 0, 255})

	canvas, diags, err := Stitch([]Part{{Payload: part, YOffset: 120}}, 100, 100)
	if err != nil {
		t.Fatalf("stitch failed: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("zero-height clip is a silent skip, got diagnostics %v", diags)
	}
	for _, y := range []int{0, 50, 99} {
		if got := canvas.RGBAAt(50, y); got.R != 255 || got.G != 255 || got.B != 255 {
			t.Errorf("expected untouched white canvas at y=%d, got %v", y, got)
		}
	}
}

func TestStitchSkipsUndecodablePart(t *testing.T) {
	good := solidPayload(t, 100, 100, color.RGBA{255, 0, 0, 255})

	canvas, diags, err := Stitch([]Part{
		{Payload: "!!garbage!!", YOffset: 0},
		{Payload: good, YOffset: 0},
	}, 100, 100)
	if err != nil {
		t.Fatalf("stitch must not abort on a bad part: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %v", diags)
	}
	if diags[0].Part != 0 || diags[0].Op != "stitch" {
		t.Errorf("diagnostic should name part 0, got %+v", diags[0])
	}
	if got := canvas.RGBAAt(10, 10); got.R != 255 {
		t.Errorf("good part should still be drawn, got %v", got)
	}
}

func TestStitchRejectsInvalidCanvas(t *testing.T) {
	if _, _, err := Stitch(nil, 0, 100); err == nil {
		t.Error("expected error for zero width canvas")
	}
	if _, _, err := Stitch(nil, 100, -1); err == nil {
		t.Error("expected error for negative height canvas")
	}
}

func TestStitchEmptyPartsIsWhiteCanvas(t *testing.T) {
	canvas, diags, err := Stitch(nil, 20, 20)
	if err != nil {
		t.Fatalf("stitch failed: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("expected no diagnostics, got %v", diags)
	}
	if got := canvas.RGBAAt(10, 10); got.R != 255 || got.G != 255 || got.B != 255 || got.A != 255 {
		t.Errorf("expected opaque white fill, got %v", got)
	}
}
