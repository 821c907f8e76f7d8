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


package radius

import (
	"io"
	"math"
	"testing"

	"diffatlas/internal/params"
	"diffatlas/internal/pattern"
)

func TestStopReasonString(t *testing.T) {
	if Converged.String()!="converged" || Exhausted.String()!="exhausted" {
		t.Error("stop reason labels changed")
	}
}

func TestEstimateChecksInput(t *testing.T) {
	cfg:=params.New(io.Discard)
	if _, err:=Estimate(nil, cfg); err==nil {
		t.Error("empty stack should error")
	}

	cfg.Radius.MinRadius=0
	if _, err:=Estimate([]*pattern.Image{pattern.NewImage(32, 32)}, cfg); err==nil {
		t.Error("non-positive minimum radius should error")
	}

	cfg.Radius.MinRadius=20
	cfg.Radius.MaxRadius=10
	if _, err:=Estimate([]*pattern.Image{pattern.NewImage(32, 32)}, cfg); err==nil {
		t.Error("inverted search window should error")
	}
}

func TestRadialSpectrum(t *testing.T) {
	w, h, bins:=16, 16, 8
	spec:=make([]complex128, w*h)
	spec[0]=3+4i // DC, rho 0, amplitude 5
	got:=radialSpectrum(spec, w, h, bins)
	if math.Abs(got[0]-5)>1e-12 {
		t.Errorf("bin 0 is %f, expect amplitude 5 at DC", got[0])
	}
	for i:=1; i<bins; i++ {
		if got[i]!=0 {
			t.Errorf("bin %d is %f, expect 0", i, got[i])
		}
	}

	// total amplitude is conserved across the rebinning
	for i:=range spec {
		spec[i]=complex(1, 0)
	}
	got=radialSpectrum(spec, w, h, bins)
	sum:=0.0
	for _, v:=range got { sum+=v }
	if math.Abs(sum-float64(w*h))>1e-9 {
		t.Errorf("total binned amplitude %f, expect %d", sum, w*h)
	}
}

func renderDisks(w, h, radius int, centers [][2]int) *pattern.Image {
	img:=pattern.NewImage(w, h)
	for _, c:=range centers {
		for y:=c[1]-radius; y<=c[1]+radius; y++ {
			if y<0 || y>=h { continue }
			for x:=c[0]-radius; x<=c[0]+radius; x++ {
				if x<0 || x>=w { continue }
				dx, dy:=float64(x-c[0]), float64(y-c[1])
				if math.Hypot(dx, dy)<=float64(radius) {
					img.Data[y*w+x]=1000
				}
			}
		}
	}
	return img
}

func TestEstimateSyntheticDisks(t *testing.T) {
	if testing.Short() { t.Skip("skipping full radius estimation in short mode") }

	w, h, radius:=256, 256, 12
	centers:=[][2]int{
		{64, 64}, {128, 64}, {192, 64},
		{64, 128}, {128, 128}, {192, 128},
		{64, 192}, {128, 192}, {192, 192},
	}
	images:=[]*pattern.Image{
		renderDisks(w, h, radius, centers),
		renderDisks(w, h, radius, centers),
		renderDisks(w, h, radius, centers),
	}

	cfg:=params.New(io.Discard)
	cfg.Radius.MinRadius=4
	cfg.Radius.MaxRadius=40
	cfg.Radius.RefineRange=16
	cfg.MaxThreads=2

	res, err:=Estimate(images, cfg)
	if err!=nil { t.Fatal(err) }
	if d:=res.Radius-radius; d< -2 || d>2 {
		t.Errorf("estimated radius %d, expect %d within 2 px", res.Radius, radius)
	}
	if res.Thickness%2!=1 {
		t.Errorf("thickness %d, expect odd", res.Thickness)
	}
	if res.Images<1 || res.Images>len(images) {
		t.Errorf("%d images processed, expect between 1 and %d", res.Images, len(images))
	}
}

func TestEstimateIdenticalImagesConverge(t *testing.T) {
	if testing.Short() { t.Skip("skipping convergence check in short mode") }

	w, h:=128, 128
	img:=renderDisks(w, h, 8, [][2]int{{40, 40}, {88, 40}, {40, 88}, {88, 88}})
	images:=[]*pattern.Image{img, img, img, img}

	cfg:=params.New(io.Discard)
	cfg.Radius.MinRadius=4
	cfg.Radius.MaxRadius=24
	cfg.MaxThreads=2

	res, err:=Estimate(images, cfg)
	if err!=nil { t.Fatal(err) }
	// identical frames add no information, so the loop must stop early
	if res.Reason!=Converged {
		t.Errorf("stop reason %v, expect converged on identical frames", res.Reason)
	}
	if res.Images>2 {
		t.Errorf("%d images processed, expect convergence after 2", res.Images)
	}
}
