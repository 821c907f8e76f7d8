// Copyright (C) 2026 The diffatlas authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package render

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"diffatlas/internal/ellipse"
	"diffatlas/internal/pattern"
	"diffatlas/internal/spots"
)

func TestOverlay(t *testing.T) {
	avg:=pattern.NewImage(64, 64)
	for i:=range avg.Data {
		avg.Data[i]=float32(i)
	}
	positions:=[]spots.Position{{X: 20, Y: 20}, {X: 44, Y: 44}}
	fits:=[]ellipse.Fit{
		{Spot: positions[0], Ellipse: ellipse.Ellipse{CenterX: 20, CenterY: 20, SemiA: 6, SemiB: 4, IsEllipse: true}},
		{Spot: positions[1], Err: os.ErrInvalid},
	}

	img:=Overlay(avg, positions, fits, 5)
	if img.Rect.Dx()!=64 || img.Rect.Dy()!=64 {
		t.Fatalf("overlay is %dx%d, expect 64x64", img.Rect.Dx(), img.Rect.Dy())
	}

	// the circle outline must leave the grayscale backdrop
	c:=img.RGBAAt(25, 20)
	if c.R==c.G && c.G==c.B {
		t.Error("spot circle pixel still grayscale")
	}
	// a pixel far from any marking stays grayscale
	c=img.RGBAAt(2, 60)
	if !(c.R==c.G && c.G==c.B) {
		t.Error("background pixel no longer grayscale")
	}
}

func TestOverlayMarksExtremalPoints(t *testing.T) {
	avg:=pattern.NewImage(64, 64)
	fits:=[]ellipse.Fit{
		{Ellipse: ellipse.Ellipse{CenterX: 32, CenterY: 32, SemiA: 10, SemiB: 5, IsEllipse: true}},
	}

	img:=Overlay(avg, nil, fits, 5)
	// the cross arms at the right extremal point (42,32) reach pixels off
	// the ellipse outline
	for _, p:=range []struct{ x, y int }{{42, 30}, {40, 32}} {
		c:=img.RGBAAt(p.x, p.y)
		if c.R==c.G && c.G==c.B {
			t.Errorf("extremal marker pixel (%d,%d) still grayscale", p.x, p.y)
		}
	}
}

func TestOverlayClipsAtBorder(t *testing.T) {
	avg:=pattern.NewImage(16, 16)
	// a spot half outside the image must not panic
	Overlay(avg, []spots.Position{{X: 0, Y: 0}}, nil, 10)
}

func TestWritePNG(t *testing.T) {
	avg:=pattern.NewImage(8, 8)
	img:=Overlay(avg, nil, nil, 3)
	fileName:=filepath.Join(t.TempDir(), "overlay.png")
	if err:=WritePNG(img, fileName); err!=nil {
		t.Fatal(err)
	}
	file, err:=os.Open(fileName)
	if err!=nil { t.Fatal(err) }
	defer file.Close()
	decoded, err:=png.Decode(file)
	if err!=nil { t.Fatal(err) }
	if decoded.Bounds().Dx()!=8 || decoded.Bounds().Dy()!=8 {
		t.Errorf("decoded PNG is %dx%d, expect 8x8", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}
