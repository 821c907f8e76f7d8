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


package fourier

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"diffatlas/internal/pattern"
)

// A 2D FFT plan for fixed dimensions. The row and column transforms are
// created once and reused across the whole stack; plans are not safe for
// concurrent use, create one per worker
type FFT2 struct {
	Width  int
	Height int
	row    *fourier.CmplxFFT
	col    *fourier.CmplxFFT
	buf    []complex128
}

// Creates a 2D FFT plan for images of the given dimensions
func NewFFT2(width, height int) *FFT2 {
	return &FFT2{
		Width : width,
		Height: height,
		row   : fourier.NewCmplxFFT(width),
		col   : fourier.NewCmplxFFT(height),
		buf   : make([]complex128, width*height),
	}
}

// Forward transforms an image into its frequency-domain representation,
// DC component at index 0, row-major Width*Height complex values
func (f *FFT2) Forward(img *pattern.Image) ([]complex128, error) {
	if img.Width!=f.Width || img.Height!=f.Height {
		return nil, fmt.Errorf("image is %dx%d, FFT plan is %dx%d", img.Width, img.Height, f.Width, f.Height)
	}
	spec:=make([]complex128, f.Width*f.Height)
	for i, v:=range img.Data {
		spec[i]=complex(float64(v), 0)
	}
	f.transform(spec, false)
	return spec, nil
}

// Inverse transforms a frequency-domain representation back into an image.
// Only the real part is retained
func (f *FFT2) Inverse(spec []complex128) (*pattern.Image, error) {
	if len(spec)!=f.Width*f.Height {
		return nil, fmt.Errorf("spectrum length %d, FFT plan needs %d", len(spec), f.Width*f.Height)
	}
	work:=make([]complex128, len(spec))
	copy(work, spec)
	f.transform(work, true)
	img:=pattern.NewImage(f.Width, f.Height)
	norm:=1.0/float64(f.Width*f.Height)
	for i, v:=range work {
		img.Data[i]=float32(real(v)*norm)
	}
	return img, nil
}

// In-place 2D transform: rows first, then columns
func (f *FFT2) transform(spec []complex128, inverse bool) {
	rowIn :=make([]complex128, f.Width)
	rowOut:=make([]complex128, f.Width)
	for y:=0; y<f.Height; y++ {
		copy(rowIn, spec[y*f.Width:(y+1)*f.Width])
		if inverse {
			f.row.Sequence(rowOut, rowIn)
		} else {
			f.row.Coefficients(rowOut, rowIn)
		}
		copy(spec[y*f.Width:(y+1)*f.Width], rowOut)
	}
	colIn :=make([]complex128, f.Height)
	colOut:=make([]complex128, f.Height)
	for x:=0; x<f.Width; x++ {
		for y:=0; y<f.Height; y++ {
			colIn[y]=spec[y*f.Width+x]
		}
		if inverse {
			f.col.Sequence(colOut, colIn)
		} else {
			f.col.Coefficients(colOut, colIn)
		}
		for y:=0; y<f.Height; y++ {
			spec[y*f.Width+x]=colOut[y]
		}
	}
}

// Amplitude of a frequency-domain representation as an image
func (f *FFT2) Amplitude(spec []complex128) *pattern.Image {
	img:=pattern.NewImage(f.Width, f.Height)
	for i, v:=range spec {
		img.Data[i]=float32(cmplx.Abs(v))
	}
	return img
}

// Elementwise product of two equal-length spectra into a new slice
func Multiply(a, b []complex128) []complex128 {
	res:=make([]complex128, len(a))
	for i:=range a {
		res[i]=a[i]*b[i]
	}
	return res
}

// Elementwise quotient a/b. Zero divisors yield zero rather than NaN
func Divide(a, b []complex128) []complex128 {
	res:=make([]complex128, len(a))
	for i:=range a {
		if b[i]!=0 {
			res[i]=a[i]/b[i]
		}
	}
	return res
}

// Sum of a spectrum's elements
func ReduceSum(a []complex128) complex128 {
	sum:=complex128(0)
	for _, v:=range a {
		sum+=v
	}
	return sum
}

// Signed frequency in cycles per pixel for bin k of an n-point transform
func FreqCoord(k, n int) float64 {
	if k<=n/2 {
		return float64(k)/float64(n)
	}
	return float64(k-n)/float64(n)
}
