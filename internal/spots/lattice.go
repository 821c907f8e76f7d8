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
	"math"
	"sort"

	"diffatlas/internal/pattern"
)

// A lattice basis vector in integer pixel units
type LatticeVector struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type dispCluster struct {
	sumX, sumY float64
	count      int
}

func (c *dispCluster) center() (float64, float64) {
	return c.sumX/float64(c.count), c.sumY/float64(c.count)
}

// Infers up to two lattice basis vectors from the pairwise displacements of
// the detected spots. Displacements are canonicalized to the upper half
// plane and clustered with a tolerance of half the spot radius; the basis
// is the most recurrent short cluster plus the most recurrent cluster not
// collinear with it. Returns fewer than two vectors when the spot set is
// too small or too irregular to support them
func LatticeVectors(positions []Position, radius int) []LatticeVector {
	if len(positions)<3 { return nil }
	tol:=float64(radius)*0.5
	var clusters []*dispCluster
	for i:=0; i<len(positions); i++ {
		for j:=i+1; j<len(positions); j++ {
			dx:=float64(positions[j].X-positions[i].X)
			dy:=float64(positions[j].Y-positions[i].Y)
			if dy<0 || (dy==0 && dx<0) { dx, dy=-dx, -dy }
			matched:=false
			for _, c:=range clusters {
				cx, cy:=c.center()
				if math.Hypot(dx-cx, dy-cy)<=tol {
					c.sumX+=dx
					c.sumY+=dy
					c.count++
					matched=true
					break
				}
			}
			if !matched {
				clusters=append(clusters, &dispCluster{dx, dy, 1})
			}
		}
	}

	// most recurrent first, shortest breaks ties
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].count!=clusters[j].count { return clusters[i].count>clusters[j].count }
		xi, yi:=clusters[i].center()
		xj, yj:=clusters[j].center()
		return math.Hypot(xi, yi)<math.Hypot(xj, yj)
	})

	var vectors []LatticeVector
	for _, c:=range clusters {
		if c.count<2 { break }
		cx, cy:=c.center()
		if math.Hypot(cx, cy)<tol { continue }
		if len(vectors)==1 {
			// reject candidates collinear with the first basis vector
			v:=vectors[0]
			cross:=math.Abs(float64(v.X)*cy-float64(v.Y)*cx)
			if cross<=tol*math.Hypot(float64(v.X), float64(v.Y)) { continue }
		}
		vectors=append(vectors, LatticeVector{int(math.Round(cx)), int(math.Round(cy))})
		if len(vectors)==2 { break }
	}
	return vectors
}

// Extends the spot set along the lattice: for every known spot, each
// neighbor predicted by a basis vector is checked on the score map, and a
// local maximum above the noise floor becomes a new spot. Repeats until no
// further spot is found. The score map carries the blackened disks from
// the initial detection, so known spots never re-trigger. Returns the
// number of spots added
func FindOtherSpots(score *pattern.Image, positions *[]Position, vectors []LatticeVector, radius int, noiseFraction float64) (added int) {
	floor:=peakFloor(score, noiseFraction)
	window:=radius/2
	if window<1 { window=1 }
	for {
		found:=false
		for i:=0; i<len(*positions); i++ {
			p:=(*positions)[i]
			for _, v:=range vectors {
				for _, sign:=range []int{1, -1} {
					cx, cy:=p.X+sign*v.X, p.Y+sign*v.Y
					if cx<0 || cx>=score.Width || cy<0 || cy>=score.Height { continue }
					x, y, val:=localMax(score, cx, cy, window)
					if float64(val)<=floor { continue }
					*positions=append(*positions, Position{x, y})
					score.FillCircle(x, y, radius, 0)
					added++
					found=true
				}
			}
		}
		if !found { break }
	}
	return added
}

// The blackened score map no longer holds the first peak, so the floor is
// reconstructed from the strongest surviving response
func peakFloor(score *pattern.Image, noiseFraction float64) float64 {
	_, _, peak:=score.ArgMax()
	return float64(peak)*noiseFraction
}

func localMax(img *pattern.Image, xc, yc, window int) (x, y int, value float32) {
	x, y, value=xc, yc, float32(-math.MaxFloat32)
	for dy:=-window; dy<=window; dy++ {
		row:=yc+dy
		if row<0 || row>=img.Height { continue }
		for dx:=-window; dx<=window; dx++ {
			col:=xc+dx
			if col<0 || col>=img.Width { continue }
			if v:=img.Data[row*img.Width+col]; v>value {
				x, y, value=col, row, v
			}
		}
	}
	return x, y, value
}

// Enforces lattice consistency: expresses each spot in lattice coordinates
// relative to the strongest spot, snaps spots within the tolerance onto
// their nearest lattice point, and removes the rest. The tolerance is a
// fraction of the spot radius. Requires two basis vectors; with fewer the
// set is left untouched. Returns the number of spots removed
func CheckSpotPos(positions *[]Position, vectors []LatticeVector, radius int, latticeTol float64) (removed int) {
	if len(vectors)<2 || len(*positions)==0 { return 0 }
	v1, v2:=vectors[0], vectors[1]
	det:=float64(v1.X*v2.Y-v1.Y*v2.X)
	if det==0 { return 0 }
	origin:=(*positions)[0]
	maxDist:=latticeTol*float64(radius)

	kept:=(*positions)[:0]
	for _, p:=range *positions {
		rx, ry:=float64(p.X-origin.X), float64(p.Y-origin.Y)
		n1:=math.Round((rx*float64(v2.Y)-ry*float64(v2.X))/det)
		n2:=math.Round((ry*float64(v1.X)-rx*float64(v1.Y))/det)
		qx:=origin.X+int(n1)*v1.X+int(n2)*v2.X
		qy:=origin.Y+int(n1)*v1.Y+int(n2)*v2.Y
		if math.Hypot(float64(p.X-qx), float64(p.Y-qy))<=maxDist {
			kept=append(kept, Position{qx, qy})
		} else {
			removed++
		}
	}
	*positions=kept
	return removed
}
