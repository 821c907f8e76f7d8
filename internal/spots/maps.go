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
	"sync"

	"diffatlas/internal/align"
	"diffatlas/internal/pattern"
)

// SpotMap accumulates the neighborhood of one spot across all images of
// the stack, in the spot's local frame. Counts track how many images
// contributed each pixel, since spots near an image border fall partly
// outside some frames
type SpotMap struct {
	Spot   Position
	Size   int
	Sum    []float32
	Counts []int32
}

func NewSpotMap(spot Position, radius int) *SpotMap {
	size:=2*radius+1
	return &SpotMap{
		Spot:   spot,
		Size:   size,
		Sum:    make([]float32, size*size),
		Counts: make([]int32, size*size),
	}
}

// Accumulates the neighborhood of the spot as seen in one image. The spot
// sits at its average-frame position plus the image's relative offset
func (m *SpotMap) Accumulate(img *pattern.Image, offset align.RelativePosition) {
	radius:=m.Size/2
	cx, cy:=m.Spot.X+offset.Dx, m.Spot.Y+offset.Dy
	for dy:=-radius; dy<=radius; dy++ {
		row:=cy+dy
		if row<0 || row>=img.Height { continue }
		mrow:=(dy+radius)*m.Size
		for dx:=-radius; dx<=radius; dx++ {
			col:=cx+dx
			if col<0 || col>=img.Width { continue }
			m.Sum[mrow+dx+radius]+=img.Data[row*img.Width+col]
			m.Counts[mrow+dx+radius]++
		}
	}
}

// Mean returns the per-pixel average of the accumulated contributions.
// Pixels no image covered stay zero
func (m *SpotMap) Mean() *pattern.Image {
	img:=pattern.NewImage(m.Size, m.Size)
	for i, c:=range m.Counts {
		if c>0 {
			img.Data[i]=m.Sum[i]/float32(c)
		}
	}
	return img
}

// BuildMaps extracts one averaged k-space map per spot from the aligned
// stack, processing spots in parallel with the given concurrency limit
func BuildMaps(images []*pattern.Image, positions []Position, offsets []align.RelativePosition, radius, maxThreads int) ([]*SpotMap, error) {
	if len(images)!=len(offsets) {
		return nil, fmt.Errorf("spot maps: %d images but %d offsets", len(images), len(offsets))
	}
	if radius<=0 {
		return nil, fmt.Errorf("spot maps: non-positive radius %d", radius)
	}
	maps:=make([]*SpotMap, len(positions))
	limiter:=make(chan bool, maxThreads)
	var wg sync.WaitGroup
	for i, spot:=range positions {
		wg.Add(1)
		limiter<-true
		go func(i int, spot Position) {
			defer func() { <-limiter; wg.Done() }()
			m:=NewSpotMap(spot, radius)
			for j, img:=range images {
				m.Accumulate(img, offsets[j])
			}
			maps[i]=m
		}(i, spot)
	}
	wg.Wait()
	return maps, nil
}
