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


package align

import (
	"fmt"

	"diffatlas/internal/pattern"
)

// Accumulated overlay of aligned images. Sum[p] is only meaningful where
// Overlap[p] > 0; dividing by Overlap yields the mean. Immutable once
// produced
type AlignedAverage struct {
	Width   int
	Height  int
	Sum     []float32
	Overlap []int32
}

// Overlays every image at its resolved integer offset, accumulating
// intensity and a per-pixel overlap counter. Pixels covered by no image
// keep a zero overlap count and are excluded from downstream use
func AlignAndAverage(images []*pattern.Image, positions []RelativePosition) (*AlignedAverage, error) {
	if err:=pattern.ValidateStack(images); err!=nil { return nil, fmt.Errorf("averaging: %w", err) }
	if len(positions)!=len(images) {
		return nil, fmt.Errorf("averaging: %d positions for %d images", len(positions), len(images))
	}
	w, h:=images[0].Width, images[0].Height
	avg:=&AlignedAverage{Width:w, Height:h, Sum:make([]float32, w*h), Overlap:make([]int32, w*h)}

	for i, img:=range images {
		dx, dy:=positions[i].Dx, positions[i].Dy
		for y:=0; y<h; y++ {
			ty:=y-dy
			if ty<0 || ty>=h { continue }
			for x:=0; x<w; x++ {
				tx:=x-dx
				if tx<0 || tx>=w { continue }
				avg.Sum[ty*w+tx]+=img.Data[y*w+x]
				avg.Overlap[ty*w+tx]++
			}
		}
	}
	return avg, nil
}

// The per-pixel mean where at least one image contributed, zero elsewhere
func (a *AlignedAverage) Mean() *pattern.Image {
	img:=pattern.NewImage(a.Width, a.Height)
	for i, n:=range a.Overlap {
		if n>0 {
			img.Data[i]=a.Sum[i]/float32(n)
		}
	}
	return img
}
