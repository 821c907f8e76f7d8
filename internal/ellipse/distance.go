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
	"math"
)

// DistanceFunc computes signed distances from points to a conic: negative
// inside, positive outside. Injectable so the distance model can be swapped
// without touching the fitting control flow
type DistanceFunc func(conic *Conic, points []WeightedPoint, accuracy float64) []float64

// ProjectedDistances is the default distance model. Each point is
// projected onto the conic by damped Newton steps along the polynomial
// gradient until the step shrinks below the requested accuracy; the
// distance is the length of the total displacement, signed by which side
// of the curve the point started on
func ProjectedDistances(conic *Conic, points []WeightedPoint, accuracy float64) []float64 {
	dists:=make([]float64, len(points))
	for i, p:=range points {
		dists[i]=projectDistance(conic, p.X, p.Y, accuracy)
	}
	return dists
}

const maxProjectionSteps=25

func projectDistance(c *Conic, x, y, accuracy float64) float64 {
	sign:=1.0
	if c.Eval(x, y)<0 { sign=-1 }
	px, py:=x, y
	for i:=0; i<maxProjectionSteps; i++ {
		q:=c.Eval(px, py)
		gx, gy:=c.Gradient(px, py)
		g2:=gx*gx+gy*gy
		if g2==0 { break }
		step:=q/g2
		px-=step*gx
		py-=step*gy
		if math.Abs(step)*math.Sqrt(g2)<accuracy { break }
	}
	return sign*math.Hypot(px-x, py-y)
}
