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
	"fmt"
	"math"
)

// A binary pixel mask with the same layout as Image
type Mask struct {
	Width  int
	Height int
	Data   []bool
}

// Creates an annular mask of the given size, marking pixels whose distance
// from the center lies in [innerRad, outerRad]. Size should be odd so the
// annulus has a well-defined center pixel
func NewAnnularMask(size, innerRad, outerRad int) *Mask {
	m:=&Mask{Width:size, Height:size, Data:make([]bool, size*size)}
	c:=size/2
	for y:=0; y<size; y++ {
		for x:=0; x<size; x++ {
			dist:=math.Sqrt(float64((y-c)*(y-c)+(x-c)*(x-c)))
			if dist>=float64(innerRad) && dist<=float64(outerRad) {
				m.Data[y*size+x]=true
			}
		}
	}
	return m
}

// Number of marked pixels
func (m *Mask) CountNonZero() int {
	n:=0
	for _, v:=range m.Data {
		if v { n++ }
	}
	return n
}

// A sample extracted at a masked pixel: its image coordinates and value
type MaskedSample struct {
	X, Y  int
	Value float32
}

// Extracts image values at marked mask pixels, with the mask's top left
// corner placed at (left,top) on the image. Mask pixels falling outside the
// image are skipped; horizontal bounds derive from the mask's column count
// and vertical bounds from its row count. Errors if no masked pixel lands
// on the image
func (m *Mask) Values(img *Image, left, top int) ([]MaskedSample, error) {
	samples:=make([]MaskedSample, 0, m.CountNonZero())
	for y:=0; y<m.Height; y++ {
		row:=top+y
		if row<0 || row>=img.Height { continue }
		for x:=0; x<m.Width; x++ {
			col:=left+x
			if col<0 || col>=img.Width { continue }
			if m.Data[y*m.Width+x] {
				samples=append(samples, MaskedSample{X:col, Y:row, Value:img.Data[row*img.Width+col]})
			}
		}
	}
	if len(samples)==0 {
		return nil, fmt.Errorf("mask at (%d,%d) has no pixels on the %dx%d image", left, top, img.Width, img.Height)
	}
	return samples, nil
}

// Threshold modes for ThresholdProportion
type ThresholdMode int

const (
	ThreshBinary    ThresholdMode = iota // mark pixels above the threshold
	ThreshBinaryInv                      // mark pixels at or below the threshold
)

// Computes a threshold so that approximately frac of the considered pixels
// exceed it, using a histogram of the value range, then returns the binary
// mask for the requested mode. If nonZero is set, only non-zero pixels are
// considered when picking the threshold. The histogram bin count is used as
// given; it is not scaled by the zero-pixel fraction
func (img *Image) ThresholdProportion(frac float32, mode ThresholdMode, histBins int, nonZero bool) (*Mask, float32) {
	if histBins<2 { histBins=2 }
	min, max:=float32(math.MaxFloat32), float32(-math.MaxFloat32)
	numUsed:=0
	for _, v:=range img.Data {
		if nonZero && v==0 { continue }
		numUsed++
		if v<min { min=v }
		if v>max { max=v }
	}
	m:=&Mask{Width:img.Width, Height:img.Height, Data:make([]bool, len(img.Data))}
	if numUsed==0 || max<=min {
		return m, 0
	}

	bins:=make([]int, histBins)
	scale:=float32(histBins-1)/(max-min)
	for _, v:=range img.Data {
		if nonZero && v==0 { continue }
		bins[int((v-min)*scale)]++
	}

	// accumulate from the top of the histogram until frac of the pixels are covered
	want:=int(frac*float32(numUsed))
	threshold:=min
	for i, total:=histBins-1, 0; i>=0; i-- {
		total+=bins[i]
		if total>want {
			threshold=min+float32(i)/scale
			break
		}
	}

	for i, v:=range img.Data {
		if nonZero && v==0 { continue }
		if (mode==ThreshBinary && v>threshold) || (mode==ThreshBinaryInv && v<=threshold) {
			m.Data[i]=true
		}
	}
	return m, threshold
}
