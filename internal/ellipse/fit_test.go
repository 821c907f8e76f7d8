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


package ellipse

import (
	"io"
	"math"
	"testing"

	"diffatlas/internal/params"
	"diffatlas/internal/pattern"
	"diffatlas/internal/spots"
)

func TestFitSpotsDisk(t *testing.T) {
	if testing.Short() { t.Skip("skipping full ellipse fit in short mode") }

	w, h, radius:=64, 64, 8
	img:=pattern.NewImage(w, h)
	cx, cy:=32, 32
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			if math.Hypot(float64(x-cx), float64(y-cy))<=float64(radius) {
				img.Data[y*w+x]=1000
			}
		}
	}

	cfg:=params.New(io.Discard)
	fitter:=NewFitter(cfg, nil)
	fits, err:=fitter.FitSpots(img, []spots.Position{{X:cx, Y:cy}}, radius)
	if err!=nil { t.Fatal(err) }
	if len(fits)!=1 { t.Fatalf("%d fits, expect 1", len(fits)) }

	fit:=fits[0]
	if fit.Err!=nil { t.Fatal(fit.Err) }
	if !fit.Ellipse.IsEllipse {
		t.Fatal("disk edge not recognized as an ellipse")
	}
	if math.Abs(fit.Ellipse.CenterX-float64(cx))>1.5 || math.Abs(fit.Ellipse.CenterY-float64(cy))>1.5 {
		t.Errorf("center (%f,%f), expect near (%d,%d)", fit.Ellipse.CenterX, fit.Ellipse.CenterY, cx, cy)
	}
	if math.Abs(fit.Ellipse.SemiA-float64(radius))>2 || math.Abs(fit.Ellipse.SemiB-float64(radius))>2 {
		t.Errorf("semi-axes (%f,%f), expect near %d", fit.Ellipse.SemiA, fit.Ellipse.SemiB, radius)
	}
	if fit.Points<6 {
		t.Errorf("%d edge points, expect at least 6", fit.Points)
	}
}

func TestEdgePointsSelectsStrongGradients(t *testing.T) {
	// 8 weak background samples and 8 strong edge samples: with a selection
	// fraction of 0.5, every surviving point must come from the strong group
	var samples []pattern.MaskedSample
	for i:=0; i<8; i++ {
		samples=append(samples, pattern.MaskedSample{X: i, Y: 0, Value: float32(1+i)})
		samples=append(samples, pattern.MaskedSample{X: i, Y: 1, Value: float32(90+i)})
	}

	points:=edgePoints(samples, 0.5, 256, 50)
	if len(points)==0 {
		t.Fatal("no edge points selected")
	}
	for _, p:=range points {
		if p.W<90 || p.Y!=1 {
			t.Errorf("edge point (%f,%f) weight %f from the weak group", p.X, p.Y, p.W)
		}
	}
}

func TestEdgePointsFlatNeighborhood(t *testing.T) {
	// constant gradient magnitude offers no edge to select
	var samples []pattern.MaskedSample
	for i:=0; i<16; i++ {
		samples=append(samples, pattern.MaskedSample{X: i, Y: 0, Value: 3})
	}
	if points:=edgePoints(samples, 0.5, 256, 50); len(points)!=0 {
		t.Errorf("%d edge points on a flat neighborhood, expect none", len(points))
	}
}

func TestFitSpotsChecksRadius(t *testing.T) {
	cfg:=params.New(io.Discard)
	fitter:=NewFitter(cfg, nil)
	if _, err:=fitter.FitSpots(pattern.NewImage(16, 16), nil, 0); err==nil {
		t.Error("non-positive radius should error")
	}
}

func TestFitSpotsBorderSpot(t *testing.T) {
	// a spot whose neighborhood misses the image must fail soft
	cfg:=params.New(io.Discard)
	fitter:=NewFitter(cfg, nil)
	fits, err:=fitter.FitSpots(pattern.NewImage(32, 32), []spots.Position{{X:-20, Y:-20}}, 8)
	if err!=nil { t.Fatal(err) }
	if fits[0].Err==nil {
		t.Error("out-of-image neighborhood should record a per-spot error")
	}
}

func TestIncidenceSign(t *testing.T) {
	w, h:=100, 100
	render:=func(beamX float64) *pattern.Image {
		img:=pattern.NewImage(w, h)
		for y:=0; y<h; y++ {
			for x:=0; x<w; x++ {
				d:=float64(x)-beamX
				img.Data[y*w+x]=float32(1000-0.1*d*d)
			}
		}
		return img
	}

	// beam left of center: the positive elongation direction is downhill
	sign, err:=IncidenceSign(render(25), nil, 5, 0, 10)
	if err!=nil { t.Fatal(err) }
	if sign!=1 {
		t.Errorf("sign %d for a beam on the negative half axis, expect +1", sign)
	}

	sign, err=IncidenceSign(render(75), nil, 5, 0, 10)
	if err!=nil { t.Fatal(err) }
	if sign!=-1 {
		t.Errorf("sign %d for a beam on the positive half axis, expect -1", sign)
	}
}

func TestIncidenceSignChecksBins(t *testing.T) {
	if _, err:=IncidenceSign(pattern.NewImage(8, 8), nil, 2, 0, 2); err==nil {
		t.Error("fewer than 3 bins should error")
	}
}
