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

	"gonum.org/v1/gonum/mat"

	"diffatlas/internal/pattern"
	"diffatlas/internal/spots"
)

// IncidenceSign infers on which side of the elongation axis the incident
// beam lies. Spots are masked out of the averaged pattern, the remaining
// background intensity is binned by its projection onto the elongation
// direction, and each half axis gets a least squares fit of
// intensity ~ a*x^2 + c. The half with the steeper falloff is downhill
// from the beam: returns +1 when the positive elongation direction is
// downhill, -1 otherwise
func IncidenceSign(avg *pattern.Image, positions []spots.Position, radius int, angle float64, bins int) (int, error) {
	if bins<3 {
		return 0, fmt.Errorf("incidence sign: need at least 3 bins, have %d", bins)
	}
	masked:=avg.Clone()
	for _, p:=range positions {
		masked.FillCircle(p.X, p.Y, radius, 0)
	}

	cx, cy:=float64(masked.Width)/2, float64(masked.Height)/2
	dx, dy:=math.Cos(angle), math.Sin(angle)
	maxProj:=math.Abs(float64(masked.Width)*dx)/2+math.Abs(float64(masked.Height)*dy)/2

	sums:=make([]float64, bins)
	counts:=make([]int, bins)
	binWidth:=2*maxProj/float64(bins)
	for y:=0; y<masked.Height; y++ {
		for x:=0; x<masked.Width; x++ {
			v:=masked.Data[y*masked.Width+x]
			if v==0 { continue }
			proj:=(float64(x)-cx)*dx+(float64(y)-cy)*dy
			b:=int((proj+maxProj)/binWidth)
			if b<0 || b>=bins { continue }
			sums[b]+=float64(v)
			counts[b]++
		}
	}

	aPos, err:=quadraticCoeff(sums, counts, maxProj, binWidth, true)
	if err!=nil { return 0, err }
	aNeg, err:=quadraticCoeff(sums, counts, maxProj, binWidth, false)
	if err!=nil { return 0, err }
	if aPos<aNeg { return 1, nil }
	return -1, nil
}

// Fits mean bin intensity ~ a*x^2 + c over one half axis and returns a
func quadraticCoeff(sums []float64, counts []int, maxProj, binWidth float64, positive bool) (float64, error) {
	var xs, ys []float64
	for b:=range sums {
		if counts[b]==0 { continue }
		x:=-maxProj+(float64(b)+0.5)*binWidth
		if positive!=(x>=0) { continue }
		xs=append(xs, x)
		ys=append(ys, sums[b]/float64(counts[b]))
	}
	if len(xs)<2 {
		return 0, fmt.Errorf("incidence sign: too few populated bins on one half axis")
	}
	a:=mat.NewDense(len(xs), 2, nil)
	for i, x:=range xs {
		a.Set(i, 0, x*x)
		a.Set(i, 1, 1)
	}
	b:=mat.NewVecDense(len(ys), ys)
	var coef mat.VecDense
	if err:=coef.SolveVec(a, b); err!=nil {
		return 0, fmt.Errorf("incidence sign: %w", err)
	}
	return coef.AtVec(0), nil
}
