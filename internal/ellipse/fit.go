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
	"fmt"
	"math"
	"sync"

	"diffatlas/internal/params"
	"diffatlas/internal/pattern"
	"diffatlas/internal/spots"
)

// The outcome of fitting one spot. Converged reports whether the
// hyper-renormalization iteration settled within its sweep budget;
// Ellipse.IsEllipse whether the fitted conic is elliptical at all
type Fit struct {
	Spot      spots.Position `json:"spot"`
	Ellipse   Ellipse        `json:"ellipse"`
	Conic     Conic          `json:"conic"`
	Points    int            `json:"points"`
	Converged bool           `json:"converged"`
	Err       error          `json:"-"`
}

// Fitter fits ellipses to spot edges. The distance model is injectable;
// nil selects ProjectedDistances
type Fitter struct {
	cfg      *params.Params
	distance DistanceFunc
}

func NewFitter(cfg *params.Params, distance DistanceFunc) *Fitter {
	if distance==nil { distance=ProjectedDistances }
	return &Fitter{cfg:cfg, distance:distance}
}

// FitSpots fits one ellipse per spot on the given image, in parallel.
// Individual spot failures are recorded in the result, not fatal
func (f *Fitter) FitSpots(img *pattern.Image, positions []spots.Position, radius int) ([]Fit, error) {
	if radius<=0 {
		return nil, fmt.Errorf("ellipse fitting: non-positive radius %d", radius)
	}
	grad:=img.ScharrAmplitude()
	fits:=make([]Fit, len(positions))
	limiter:=make(chan bool, f.cfg.MaxThreads)
	var wg sync.WaitGroup
	for i, spot:=range positions {
		wg.Add(1)
		limiter<-true
		go func(i int, spot spots.Position) {
			defer func() { <-limiter; wg.Done() }()
			fits[i]=f.fitSpot(grad, spot, radius)
		}(i, spot)
	}
	wg.Wait()

	numOK:=0
	for _, fit:=range fits {
		if fit.Err==nil && fit.Ellipse.IsEllipse { numOK++ }
	}
	fmt.Fprintf(f.cfg.Log, "Fitted ellipses for %d of %d spots\n", numOK, len(fits))
	return fits, nil
}

// Fits a single spot: extract the annular gradient neighborhood, isolate
// edge pixels by 2-way weighted clustering of gradient magnitudes, fit a
// conic, keep only points in the boundary band of the 3-way clustered
// signed distances, and refit on those
func (f *Fitter) fitSpot(grad *pattern.Image, spot spots.Position, radius int) Fit {
	cfg:=f.cfg.Ellipse
	inner, outer:=radius/2, int(math.Ceil(float64(radius)*1.5))
	size:=2*outer+1
	mask:=pattern.NewAnnularMask(size, inner, outer)

	samples, err:=mask.Values(grad, spot.X-outer, spot.Y-outer)
	if err!=nil {
		return Fit{Spot:spot, Err:fmt.Errorf("spot (%d,%d): %w", spot.X, spot.Y, err)}
	}

	points:=edgePoints(samples, cfg.ClusterFraction, cfg.ThresholdBins, cfg.KMeansMaxIter)
	fit:=Fit{Spot:spot, Points:len(points)}
	conic, converged, err:=HyperFit(points, cfg.MaxIterations, cfg.ConvergeThresh)
	if err!=nil {
		fit.Err=fmt.Errorf("spot (%d,%d): %w", spot.X, spot.Y, err)
		return fit
	}

	boundary:=f.boundaryPoints(&conic, points)
	if len(boundary)>=6 {
		if refit, reconv, err:=HyperFit(boundary, cfg.MaxIterations, cfg.ConvergeThresh); err==nil {
			conic, converged=refit, reconv
			fit.Points=len(boundary)
		}
	}

	fit.Conic=conic
	fit.Converged=converged
	fit.Ellipse=conic.ToEllipse()
	return fit
}

// Separates edge pixels from background. The strongest clusterFraction of
// gradient magnitudes are the edge candidates, selected by proportional
// histogram thresholding; clustering them into 2 groups with the magnitudes
// as both sample and weight splits residual background from true edge
// response, and the stronger group survives
func edgePoints(samples []pattern.MaskedSample, clusterFraction float64, histBins, maxIter int) []WeightedPoint {
	flat:=pattern.NewImage(len(samples), 1)
	for i, s:=range samples {
		flat.Data[i]=s.Value
	}
	mask, _:=flat.ThresholdProportion(float32(clusterFraction), pattern.ThreshBinary, histBins, false)

	var values []float64
	var candidates []pattern.MaskedSample
	for i, s:=range samples {
		if mask.Data[i] {
			values=append(values, float64(s.Value))
			candidates=append(candidates, s)
		}
	}
	_, labels:=WeightedKMeans(values, values, 2, maxIter)

	points:=make([]WeightedPoint, 0, len(candidates))
	for i, s:=range candidates {
		if labels[i]==1 {
			points=append(points, WeightedPoint{float64(s.X), float64(s.Y), values[i]})
		}
	}
	return points
}

// Keeps points whose signed conic distance falls in the boundary band:
// the middle of 3 clusters, expected to separate just-inside, on-boundary
// and just-outside points
func (f *Fitter) boundaryPoints(conic *Conic, points []WeightedPoint) []WeightedPoint {
	dists:=f.distance(conic, points, f.cfg.Ellipse.DistAccuracy)
	weights:=make([]float64, len(points))
	for i, p:=range points {
		weights[i]=p.W
	}
	_, labels:=WeightedKMeans(dists, weights, 3, f.cfg.Ellipse.KMeansMaxIter)

	kept:=make([]WeightedPoint, 0, len(points))
	for i, p:=range points {
		if labels[i]==1 {
			kept=append(kept, p)
		}
	}
	return kept
}
