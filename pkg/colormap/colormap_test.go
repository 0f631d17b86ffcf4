package colormap

import (
	"image/color"
	"testing"
)

func TestSeuratColormapEndpoints(t *testing.T) {
	t.Parallel()

	c0, ok := Seurat.At(0).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=0")
	}
	if c0 != (color.RGBA{R: 211, G: 211, B: 211, A: 255}) {
		t.Fatalf("unexpected Seurat.At(0): %#v", c0)
	}

	c1, ok := Seurat.At(1).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=1")
	}
	if c1 != (color.RGBA{R: 255, G: 0, B: 0, A: 255}) {
		t.Fatalf("unexpected Seurat.At(1): %#v", c1)
	}
}

func TestRdBuDiverging(t *testing.T) {
	t.Parallel()

	lo := RdBu.At(0).(color.RGBA)
	if lo != (color.RGBA{R: 5, G: 48, B: 97, A: 255}) {
		t.Fatalf("unexpected RdBu.At(0): %#v", lo)
	}

	hi := RdBu.At(1).(color.RGBA)
	if hi != (color.RGBA{R: 103, G: 0, B: 31, A: 255}) {
		t.Fatalf("unexpected RdBu.At(1): %#v", hi)
	}

	// The midpoint of an 11-stop map falls exactly on the sixth stop, so
	// zero-centered data gets the neutral color with no interpolation.
	mid := RdBu.At(0.5).(color.RGBA)
	if mid != (color.RGBA{R: 247, G: 247, B: 247, A: 255}) {
		t.Fatalf("unexpected RdBu.At(0.5): %#v", mid)
	}
}

func TestColormapClampsOutOfRange(t *testing.T) {
	t.Parallel()

	if RdBu.At(-3) != RdBu.At(0) {
		t.Fatalf("At(-3) should clamp to At(0)")
	}
	if RdBu.At(7) != RdBu.At(1) {
		t.Fatalf("At(7) should clamp to At(1)")
	}
}

func TestColormapInterpolatesBetweenStops(t *testing.T) {
	t.Parallel()

	// Halfway between two adjacent Seurat stops the channels average.
	c := Seurat.At(0.5).(color.RGBA)
	want := color.RGBA{R: 255, G: 160, B: 125, A: 255}
	if c != want {
		t.Fatalf("Seurat.At(0.5) = %#v, want %#v", c, want)
	}
}
