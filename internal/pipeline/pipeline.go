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


// Package pipeline chains the analysis stages of a diffraction atlas run:
// spot radius estimation, stack alignment and averaging, the symmetry
// cross-check, spot location, per-spot map accumulation and ellipse
// fitting. Data flows strictly downstream
package pipeline

import (
	"fmt"
	"math"
	"time"

	"diffatlas/internal/align"
	"diffatlas/internal/ellipse"
	"diffatlas/internal/params"
	"diffatlas/internal/pattern"
	"diffatlas/internal/radius"
	"diffatlas/internal/spots"
	"diffatlas/internal/symmetry"
)

// Everything a full run produces
type Result struct {
	Radius    radius.Result
	Positions []align.RelativePosition
	Average   *pattern.Image
	Overlap   *align.AlignedAverage
	Symmetry  *symmetry.Result
	Spots     []spots.Position
	Lattice   []spots.LatticeVector
	Maps      []*spots.SpotMap
	Fits      []ellipse.Fit
	Incidence int // +1/-1 when the dominant elongation points down/up the background falloff, 0 if undetermined
}

// Run executes the full pipeline on an image stack
func Run(images []*pattern.Image, cfg *params.Params) (*Result, error) {
	if err:=pattern.ValidateStack(images); err!=nil {
		return nil, err
	}
	start:=time.Now()
	res:=&Result{}

	rad, err:=radius.Estimate(images, cfg)
	if err!=nil {
		return nil, fmt.Errorf("radius estimation: %w", err)
	}
	res.Radius=rad

	engine:=align.NewEngine(images[0].Width, images[0].Height, rad.Radius, rad.Thickness, cfg)
	positions, _, err:=engine.ComputeRelativePositions(images)
	if err!=nil {
		return nil, fmt.Errorf("alignment: %w", err)
	}
	res.Positions=positions

	overlap, err:=align.AlignAndAverage(images, positions)
	if err!=nil {
		return nil, fmt.Errorf("averaging: %w", err)
	}
	res.Overlap=overlap
	res.Average=overlap.Mean()

	sym, err:=symmetry.FindAxes(res.Average, float64(res.Average.Width)/2, float64(res.Average.Height)/2, cfg)
	if err!=nil {
		fmt.Fprintf(cfg.Log, "Symmetry cross-check failed: %s\n", err)
	} else {
		res.Symmetry=sym
		fmt.Fprintf(cfg.Log, "Symmetry center (%.1f,%.1f) vs pattern center (%.1f,%.1f)\n",
			sym.CenterX, sym.CenterY, float64(res.Average.Width)/2, float64(res.Average.Height)/2)
	}

	positionsFound, lattice, err:=spots.Locate(res.Average, rad.Radius, rad.Thickness, cfg)
	if err!=nil {
		return nil, fmt.Errorf("spot location: %w", err)
	}
	res.Spots, res.Lattice=positionsFound, lattice

	maps, err:=spots.BuildMaps(images, positionsFound, positions, rad.Radius, cfg.MaxThreads)
	if err!=nil {
		return nil, fmt.Errorf("spot maps: %w", err)
	}
	res.Maps=maps

	fitter:=ellipse.NewFitter(cfg, nil)
	fits, err:=fitter.FitSpots(res.Average, positionsFound, rad.Radius)
	if err!=nil {
		return nil, fmt.Errorf("ellipse fitting: %w", err)
	}
	res.Fits=fits

	res.Incidence=incidenceFromFits(res.Average, positionsFound, rad.Radius, fits, cfg)
	if res.Incidence!=0 {
		fmt.Fprintf(cfg.Log, "Beam incidence sign %+d along the dominant elongation axis\n", res.Incidence)
	}

	fmt.Fprintf(cfg.Log, "Processed %d images in %v: radius %d px, %d spots, %d ellipses\n",
		len(images), time.Since(start).Round(time.Millisecond), rad.Radius, len(res.Spots), numEllipses(fits))
	return res, nil
}

func numEllipses(fits []ellipse.Fit) int {
	n:=0
	for _, f:=range fits {
		if f.Err==nil && f.Ellipse.IsEllipse { n++ }
	}
	return n
}

// Infers on which side of the pattern the incident beam lies, from the most
// elongated successful fit: its major axis points along the background
// intensity falloff. Near-circular fits carry no usable orientation, so a
// stack without meaningful elongation yields 0
func incidenceFromFits(avg *pattern.Image, positions []spots.Position, radius int, fits []ellipse.Fit, cfg *params.Params) int {
	best, ratio:=-1, 1.05
	for i, f:=range fits {
		if f.Err!=nil || !f.Ellipse.IsEllipse { continue }
		r:=f.Ellipse.SemiA/f.Ellipse.SemiB
		if r<1 { r=1/r }
		if r>ratio { best, ratio=i, r }
	}
	if best<0 { return 0 }

	e:=&fits[best].Ellipse
	angle:=e.Theta
	if e.SemiB>e.SemiA { angle+=math.Pi/2 }
	sign, err:=ellipse.IncidenceSign(avg, positions, radius, angle, cfg.Ellipse.IncidenceBins)
	if err!=nil {
		fmt.Fprintf(cfg.Log, "Beam incidence inference failed: %s\n", err)
		return 0
	}
	return sign
}
