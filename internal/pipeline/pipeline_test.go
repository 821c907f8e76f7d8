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


package pipeline

import (
	"io"
	"math"
	"testing"

	"diffatlas/internal/align"
	"diffatlas/internal/ellipse"
	"diffatlas/internal/params"
	"diffatlas/internal/pattern"
)

func renderStackFrame(w, h, radius int, centers [][2]int, dx, dy int) *pattern.Image {
	img:=pattern.NewImage(w, h)
	for _, c:=range centers {
		cx, cy:=c[0]+dx, c[1]+dy
		for y:=cy-radius; y<=cy+radius; y++ {
			if y<0 || y>=h { continue }
			for x:=cx-radius; x<=cx+radius; x++ {
				if x<0 || x>=w { continue }
				ddx, ddy:=float64(x-cx), float64(y-cy)
				if math.Hypot(ddx, ddy)<=float64(radius) {
					img.Data[y*w+x]=1000
				}
			}
		}
	}
	return img
}

func TestRunChecksInput(t *testing.T) {
	cfg:=params.New(io.Discard)
	if _, err:=Run(nil, cfg); err==nil {
		t.Error("empty stack should error")
	}
	mixed:=[]*pattern.Image{pattern.NewImage(16, 16), pattern.NewImage(8, 8)}
	if _, err:=Run(mixed, cfg); err==nil {
		t.Error("mismatched stack dimensions should error")
	}
}

// Background falling off quadratically away from the beam column
func renderFalloff(w, h, beamX int) *pattern.Image {
	img:=pattern.NewImage(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			d:=float64(x-beamX)
			img.Data[y*w+x]=float32(1000-0.1*d*d)
		}
	}
	return img
}

func TestIncidenceFromFits(t *testing.T) {
	cfg:=params.New(io.Discard)
	avg:=renderFalloff(100, 100, 25)

	// beam left of center: the positive elongation direction is downhill
	elongated:=[]ellipse.Fit{
		{Ellipse: ellipse.Ellipse{CenterX: 50, CenterY: 50, SemiA: 10, SemiB: 4, IsEllipse: true}},
	}
	if sign:=incidenceFromFits(avg, nil, 5, elongated, cfg); sign!=1 {
		t.Errorf("incidence sign %d for beam at x=25, expect 1", sign)
	}
	if sign:=incidenceFromFits(renderFalloff(100, 100, 75), nil, 5, elongated, cfg); sign!=-1 {
		t.Errorf("incidence sign %d for beam at x=75, expect -1", sign)
	}

	// a swapped minor/major axis still selects the elongation direction:
	// vertical elongation against a background falling off away from y=25
	vert:=pattern.NewImage(100, 100)
	for y:=0; y<100; y++ {
		d:=float64(y-25)
		for x:=0; x<100; x++ {
			vert.Data[y*100+x]=float32(1000-0.1*d*d)
		}
	}
	swapped:=[]ellipse.Fit{
		{Ellipse: ellipse.Ellipse{CenterX: 50, CenterY: 50, SemiA: 4, SemiB: 10, IsEllipse: true}},
	}
	if sign:=incidenceFromFits(vert, nil, 5, swapped, cfg); sign!=1 {
		t.Errorf("incidence sign %d with swapped axes, expect 1", sign)
	}

	// near-circular fits carry no orientation
	circular:=[]ellipse.Fit{
		{Ellipse: ellipse.Ellipse{CenterX: 50, CenterY: 50, SemiA: 5, SemiB: 4.9, IsEllipse: true}},
	}
	if sign:=incidenceFromFits(avg, nil, 5, circular, cfg); sign!=0 {
		t.Errorf("incidence sign %d for a near-circular fit, expect 0", sign)
	}
	if sign:=incidenceFromFits(avg, nil, 5, nil, cfg); sign!=0 {
		t.Errorf("incidence sign %d without fits, expect 0", sign)
	}
}

func TestRunSyntheticStack(t *testing.T) {
	if testing.Short() { t.Skip("skipping full pipeline run in short mode") }

	w, h, radius:=256, 256, 10
	centers:=[][2]int{
		{64, 64}, {128, 64}, {192, 64},
		{64, 128}, {128, 128}, {192, 128},
		{64, 192}, {128, 192}, {192, 192},
	}
	shifts:=[]align.RelativePosition{
		{Dx: 0, Dy: 0}, {Dx: 4, Dy: -3}, {Dx: -5, Dy: 2}, {Dx: 2, Dy: 6}, {Dx: -3, Dy: -4},
	}
	images:=make([]*pattern.Image, len(shifts))
	for i, s:=range shifts {
		images[i]=renderStackFrame(w, h, radius, centers, s.Dx, s.Dy)
	}

	cfg:=params.New(io.Discard)
	cfg.MaxThreads=2
	cfg.Radius.MinRadius=4
	cfg.Radius.MaxRadius=40
	cfg.Radius.RefineRange=16

	res, err:=Run(images, cfg)
	if err!=nil { t.Fatal(err) }

	if d:=res.Radius.Radius-radius; d< -2 || d>2 {
		t.Errorf("radius %d, expect %d within 2 px", res.Radius.Radius, radius)
	}

	if len(res.Positions)!=len(shifts) {
		t.Fatalf("%d positions, expect %d", len(res.Positions), len(shifts))
	}
	for i, want:=range shifts {
		got:=res.Positions[i]
		if intAbs(got.Dx-want.Dx)>1 || intAbs(got.Dy-want.Dy)>1 {
			t.Errorf("image %d at %+v, expect %+v within one pixel", i, got, want)
		}
	}

	if res.Average==nil || res.Average.Width!=w || res.Average.Height!=h {
		t.Fatal("average pattern missing or missized")
	}
	// every pixel of the first frame is covered by at least that frame
	if res.Overlap.Overlap[128*w+128]<int32(len(images)-1) {
		t.Errorf("central overlap %d, expect near full stack coverage", res.Overlap.Overlap[128*w+128])
	}

	if len(res.Spots)!=len(centers) {
		t.Fatalf("%d spots, expect %d", len(res.Spots), len(centers))
	}
	for _, c:=range centers {
		best:=math.Inf(1)
		for _, p:=range res.Spots {
			if d:=math.Hypot(float64(p.X-c[0]), float64(p.Y-c[1])); d<best { best=d }
		}
		if best>3 {
			t.Errorf("no spot within 3 px of center %v", c)
		}
	}
	if len(res.Lattice)!=2 {
		t.Errorf("%d lattice vectors, expect 2", len(res.Lattice))
	}

	if len(res.Maps)!=len(res.Spots) {
		t.Fatalf("%d spot maps, expect %d", len(res.Maps), len(res.Spots))
	}
	wantSize:=2*res.Radius.Radius+1
	for i, m:=range res.Maps {
		if m.Size!=wantSize {
			t.Errorf("map %d size %d, expect %d", i, m.Size, wantSize)
		}
		center:=m.Mean().Data[(m.Size/2)*m.Size+m.Size/2]
		if center<900 {
			t.Errorf("map %d center mean %f, expect bright spot interior", i, center)
		}
	}

	if len(res.Fits)!=len(res.Spots) {
		t.Fatalf("%d fits, expect %d", len(res.Fits), len(res.Spots))
	}
	numEll:=0
	for _, f:=range res.Fits {
		if f.Err==nil && f.Ellipse.IsEllipse { numEll++ }
	}
	if numEll<len(res.Fits)-2 {
		t.Errorf("%d of %d fits elliptical, expect nearly all on circular spots", numEll, len(res.Fits))
	}
	for _, f:=range res.Fits {
		if f.Err!=nil || !f.Ellipse.IsEllipse { continue }
		if math.Abs(f.Ellipse.SemiA-float64(radius))>3 || math.Abs(f.Ellipse.SemiB-float64(radius))>3 {
			t.Errorf("spot %+v semi-axes (%.1f,%.1f), expect near %d", f.Spot, f.Ellipse.SemiA, f.Ellipse.SemiB, radius)
		}
	}
}

func intAbs(v int) int {
	if v<0 { return -v }
	return v
}
