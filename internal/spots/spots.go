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


package spots

import (
	"fmt"

	"diffatlas/internal/fourier"
	"diffatlas/internal/params"
	"diffatlas/internal/pattern"
)

// Integer pixel coordinate of a spot on the aligned average pattern.
// Collected in discovery order: initial detections first, lattice-inferred
// additions after
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Builds the combined score map for spot detection: the product of the
// gradient filtrate's annulus correlation and the raw average's circle
// correlation. The annulus response emphasizes edges, the circle response
// filled blobs; the product suppresses false positives from either alone.
// Both factors are normalized to unit peak before multiplying
func ScoreMap(avg *pattern.Image, radius, thickness int, cfg *params.Params) (*pattern.Image, error) {
	w, h:=avg.Width, avg.Height
	fft:=fourier.NewFFT2(w, h)
	gauss:=fourier.Gaussian(w, h, cfg.Align.GaussSigma)
	annulus:=fourier.RecursiveSelfConvolution(fourier.Annulus(w, h, radius, thickness).Blur(gauss), cfg.Align.SharpenPasses)
	circle:=fourier.Circle(w, h, radius).Blur(gauss)

	gradSpec, err:=fft.Forward(avg.ScharrAmplitude())
	if err!=nil { return nil, fmt.Errorf("spot score map: %w", err) }
	annCorr, err:=fft.Inverse(annulus.CrossCorrelate(gradSpec))
	if err!=nil { return nil, fmt.Errorf("spot score map: %w", err) }

	rawSpec, err:=fft.Forward(avg)
	if err!=nil { return nil, fmt.Errorf("spot score map: %w", err) }
	circCorr, err:=fft.Inverse(circle.CrossCorrelate(rawSpec))
	if err!=nil { return nil, fmt.Errorf("spot score map: %w", err) }

	normalize(annCorr)
	normalize(circCorr)
	score:=pattern.NewImage(w, h)
	for i:=range score.Data {
		score.Data[i]=annCorr.Data[i]*circCorr.Data[i]
	}
	return score, nil
}

// Clamps negatives to zero and scales the peak to one
func normalize(img *pattern.Image) {
	_, _, peak:=img.ArgMax()
	if peak<=0 { return }
	inv:=1/peak
	for i, v:=range img.Data {
		if v<0 {
			img.Data[i]=0
		} else {
			img.Data[i]=v*inv
		}
	}
}

// Finds spot centers on the aligned average. Iteratively takes the global
// maximum of the score map as a new spot and blackens a disk of the spot
// radius around it so no two spots lie closer than the radius, until
// remaining maxima fall below the noise floor. The detected set is then
// extended along inferred lattice vectors and cleaned by a lattice
// consistency pass. Deterministic: identical inputs yield identical spots
// in identical discovery order
func Locate(avg *pattern.Image, radius, thickness int, cfg *params.Params) ([]Position, []LatticeVector, error) {
	if radius<=0 { return nil, nil, fmt.Errorf("spot location: non-positive radius %d", radius) }
	score, err:=ScoreMap(avg, radius, thickness, cfg)
	if err!=nil { return nil, nil, err }

	positions:=FindMaxima(score, radius, cfg.Spots.NoiseFraction, cfg.Spots.MaxSpots)
	fmt.Fprintf(cfg.Log, "Found %d spots by cross correlation\n", len(positions))

	vectors:=LatticeVectors(positions, radius)
	if len(vectors)>0 {
		added:=FindOtherSpots(score, &positions, vectors, radius, cfg.Spots.NoiseFraction)
		removed:=CheckSpotPos(&positions, vectors, radius, cfg.Spots.LatticeTol)
		fmt.Fprintf(cfg.Log, "Lattice vectors %v: added %d spots, removed %d outliers\n", vectors, added, removed)
	}
	return positions, vectors, nil
}

// The argmax-then-blacken loop over a score map. Mutates the map. The noise
// floor is the given fraction of the first (strongest) response
func FindMaxima(score *pattern.Image, radius int, noiseFraction float64, maxSpots int) []Position {
	var positions []Position
	floor:=float32(-1)
	for len(positions)<maxSpots {
		x, y, peak:=score.ArgMax()
		if floor<0 {
			floor=peak*float32(noiseFraction)
		}
		if peak<=floor || peak<=0 { break }
		positions=append(positions, Position{x, y})
		score.FillCircle(x, y, radius, 0)
	}
	return positions
}
