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

// A diffraction pattern frame. Pixel intensities are stored as a flat
// row-major float32 slice of Width*Height elements.
type Image struct {
	ID       int      // Sequential ID number, for log output. Counted upwards from 0
	FileName string   // Original file name, if any, for log output

	Width  int        // Number of columns
	Height int        // Number of rows

	Data []float32    // The image data, row-major
}

// Creates an image of the given dimensions with zeroed data
func NewImage(width, height int) *Image {
	return &Image{
		Width : width,
		Height: height,
		Data  : make([]float32, width*height),
	}
}

// Creates an image wrapping the given data slice. The data is not copied
func NewImageFromData(width, height int, data []float32) (*Image, error) {
	if width<=0 || height<=0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if len(data)!=width*height {
		return nil, fmt.Errorf("data length %d does not match dimensions %dx%d", len(data), width, height)
	}
	return &Image{Width:width, Height:height, Data:data}, nil
}

// Creates a deep copy of the image
func (img *Image) Clone() *Image {
	res:=NewImage(img.Width, img.Height)
	res.ID, res.FileName=img.ID, img.FileName
	copy(res.Data, img.Data)
	return res
}

// Checks that all images in the stack are non-nil and share dimensions.
// Returns a descriptive error identifying the offending frame otherwise
func ValidateStack(images []*Image) error {
	if len(images)==0 { return fmt.Errorf("empty image stack") }
	w, h:=images[0].Width, images[0].Height
	for i, img:=range images {
		if img==nil { return fmt.Errorf("image %d is nil", i) }
		if img.Width!=w || img.Height!=h {
			return fmt.Errorf("image %d is %dx%d, stack is %dx%d", i, img.Width, img.Height, w, h)
		}
	}
	return nil
}

// Returns the position of the global intensity maximum
func (img *Image) ArgMax() (x, y int, value float32) {
	maxIndex, maxValue:=0, float32(-math.MaxFloat32)
	for i, v:=range img.Data {
		if v>maxValue {
			maxIndex, maxValue=i, v
		}
	}
	return maxIndex % img.Width, maxIndex / img.Width, maxValue
}

// Sets all pixels within the given radius of (xc,yc) to the given value.
// Used to blacken already-claimed spot regions before searching for more
func (img *Image) FillCircle(xc, yc, radius int, value float32) {
	radSq:=radius*radius
	for y:=-radius; y<=radius; y++ {
		row:=yc+y
		if row<0 || row>=img.Height { continue }
		for x:=-radius; x<=radius; x++ {
			col:=xc+x
			if col<0 || col>=img.Width { continue }
			if x*x+y*y<=radSq {
				img.Data[row*img.Width+col]=value
			}
		}
	}
}

// Amplitude of the image's Scharr filtrate: the x and y gradients are
// summed in quadrature. The one pixel border is left at zero
func (img *Image) ScharrAmplitude() *Image {
	res:=NewImage(img.Width, img.Height)
	res.ID, res.FileName=img.ID, img.FileName
	w:=img.Width
	for y:=1; y<img.Height-1; y++ {
		for x:=1; x<w-1; x++ {
			i:=y*w+x
			gx:=  3*(img.Data[i-w+1]-img.Data[i-w-1]) +
				 10*(img.Data[i  +1]-img.Data[i  -1]) +
				  3*(img.Data[i+w+1]-img.Data[i+w-1])
			gy:=  3*(img.Data[i+w-1]-img.Data[i-w-1]) +
				 10*(img.Data[i+w  ]-img.Data[i-w  ]) +
				  3*(img.Data[i+w+1]-img.Data[i-w+1])
			res.Data[i]=float32(math.Sqrt(float64(gx*gx+gy*gy)))
		}
	}
	return res
}

// Bins the image 2x2, averaging each block. Odd trailing rows/columns are dropped
func (img *Image) Downsample2x2() *Image {
	w, h:=img.Width/2, img.Height/2
	res:=NewImage(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			sum:=img.Data[(2*y)*img.Width+2*x] + img.Data[(2*y)*img.Width+2*x+1] +
				 img.Data[(2*y+1)*img.Width+2*x] + img.Data[(2*y+1)*img.Width+2*x+1]
			res.Data[y*w+x]=sum*0.25
		}
	}
	return res
}

// Repeatedly bins the image 2x2 while both dimensions stay at least targetSize.
// The downsampling factor is the largest power of two that respects the target
func (img *Image) DownsampleTo(targetSize int) *Image {
	res:=img
	for res.Width/2>=targetSize && res.Height/2>=targetSize {
		res=res.Downsample2x2()
	}
	return res
}

// Bilinear sample at a fractional position. Positions outside the image
// return 0 and ok=false
func (img *Image) Bilinear(x, y float64) (value float32, ok bool) {
	if x<0 || y<0 || x>float64(img.Width-1) || y>float64(img.Height-1) { return 0, false }
	x0, y0:=int(x), int(y)
	x1, y1:=x0+1, y0+1
	if x1>img.Width-1  { x1=img.Width-1 }
	if y1>img.Height-1 { y1=img.Height-1 }
	fx, fy:=float32(x-float64(x0)), float32(y-float64(y0))
	v00:=img.Data[y0*img.Width+x0]
	v01:=img.Data[y0*img.Width+x1]
	v10:=img.Data[y1*img.Width+x0]
	v11:=img.Data[y1*img.Width+x1]
	return (v00*(1-fx)+v01*fx)*(1-fy) + (v10*(1-fx)+v11*fx)*fy, true
}
