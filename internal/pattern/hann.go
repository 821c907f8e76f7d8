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


package pattern

import (
	"math"
)

// Separable Hann window look-up table, computed once and applied to every
// frame in the stack to suppress edge discontinuities before transforming
type HannWindow struct {
	Width  int
	Height int
	wx     []float32
	wy     []float32
}

// Precalculates the Hann window values for the given dimensions
func NewHannWindow(width, height int) *HannWindow {
	return &HannWindow{Width:width, Height:height, wx:hannCoeffs(width), wy:hannCoeffs(height)}
}

// Single-element axes get a unit weight; the usual n-1 denominator would
// divide by zero
func hannCoeffs(n int) []float32 {
	w:=make([]float32, n)
	if n<=1 {
		for i:=range w { w[i]=1 }
		return w
	}
	for i:=0; i<n; i++ {
		w[i]=float32(0.5*(1-math.Cos(2*math.Pi*float64(i)/float64(n-1))))
	}
	return w
}

// Applies the window to an image, returning a new windowed image
func (h *HannWindow) Apply(img *Image) *Image {
	res:=NewImage(img.Width, img.Height)
	res.ID, res.FileName=img.ID, img.FileName
	for y:=0; y<img.Height; y++ {
		wy:=h.wy[y]
		row:=img.Data[y*img.Width:(y+1)*img.Width]
		out:=res.Data[y*img.Width:(y+1)*img.Width]
		for x, v:=range row {
			out[x]=v*wy*h.wx[x]
		}
	}
	return res
}
