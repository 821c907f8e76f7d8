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
	"math"
)

// A reusable frequency-domain template: the Fourier transform of a spatial
// kernel, generated directly from the kernel's closed-form transform so no
// spatial-domain FFT round trip is needed. Tagged with the parameters that
// generated it. Shared read-only once created
type Template struct {
	Width     int
	Height    int
	Spec      []complex128 // DC at index 0, row-major, matching FFT2 layout
	Radius    int          // generating radius, 0 if not applicable
	Thickness int          // generating thickness, 0 if not applicable
	Sigma     float64      // generating sigma, 0 if not applicable
	Area      float64      // spatial-domain integral of the kernel before normalization
}

// Coerces a thickness to the nearest larger odd value so the annulus has a
// well-defined center radius
func OddThickness(thickness int) int {
	if thickness%2==0 { return thickness+1 }
	return thickness
}

// Frequency-domain Gaussian blur template: the transform of a unit-integral
// spatial Gaussian with the given sigma in pixels
func Gaussian(width, height int, sigma float64) *Template {
	t:=&Template{Width:width, Height:height, Spec:make([]complex128, width*height), Sigma:sigma, Area:1}
	twoPiSqSigmaSq:=2*math.Pi*math.Pi*sigma*sigma
	for ky:=0; ky<height; ky++ {
		fy:=FreqCoord(ky, height)
		for kx:=0; kx<width; kx++ {
			fx:=FreqCoord(kx, width)
			t.Spec[ky*width+kx]=complex(math.Exp(-twoPiSqSigmaSq*(fx*fx+fy*fy)), 0)
		}
	}
	return t
}

// Transform of a unit-valued disk of the given radius, evaluated at radial
// frequency rho: 2 pi R^2 jinc(2 pi R rho). The DC value is the disk area
func diskSpectrum(radius, rho float64) float64 {
	if rho==0 { return math.Pi*radius*radius }
	x:=2*math.Pi*radius*rho
	return radius*math.J1(x)/rho
}

// Frequency-domain circle (filled disk) template, normalized to unit
// spatial integral so cross-correlation responses are comparable
func Circle(width, height, radius int) *Template {
	t:=&Template{Width:width, Height:height, Spec:make([]complex128, width*height), Radius:radius}
	t.Area=math.Pi*float64(radius)*float64(radius)
	for ky:=0; ky<height; ky++ {
		fy:=FreqCoord(ky, height)
		for kx:=0; kx<width; kx++ {
			fx:=FreqCoord(kx, width)
			rho:=math.Sqrt(fx*fx+fy*fy)
			t.Spec[ky*width+kx]=complex(diskSpectrum(float64(radius), rho)/t.Area, 0)
		}
	}
	return t
}

// Frequency-domain annulus template with inner radius radius-thickness/2 and
// outer radius radius+thickness/2, as the difference of two disks. Thickness
// is coerced to the nearest larger odd value. Normalized to unit spatial
// integral
func Annulus(width, height, radius, thickness int) *Template {
	thickness=OddThickness(thickness)
	outer:=float64(radius)+0.5*float64(thickness)
	inner:=float64(radius)-0.5*float64(thickness)
	if inner<0 { inner=0 }
	t:=&Template{Width:width, Height:height, Spec:make([]complex128, width*height), Radius:radius, Thickness:thickness}
	t.Area=math.Pi*(outer*outer-inner*inner)
	for ky:=0; ky<height; ky++ {
		fy:=FreqCoord(ky, height)
		for kx:=0; kx<width; kx++ {
			fx:=FreqCoord(kx, width)
			rho:=math.Sqrt(fx*fx+fy*fy)
			t.Spec[ky*width+kx]=complex((diskSpectrum(outer, rho)-diskSpectrum(inner, rho))/t.Area, 0)
		}
	}
	return t
}

// Convolution theorem: convolving a kernel with itself n times in the
// spatial domain equals raising its transform to the n-th power elementwise.
// Returns a new template sharing the generating tags; used to sharpen
// annulus and circle cross-correlation peaks
func RecursiveSelfConvolution(t *Template, n int) *Template {
	res:=&Template{Width:t.Width, Height:t.Height, Spec:make([]complex128, len(t.Spec)),
		Radius:t.Radius, Thickness:t.Thickness, Sigma:t.Sigma, Area:t.Area}
	for i, v:=range t.Spec {
		p:=complex(1, 0)
		for j:=0; j<n; j++ {
			p*=v
		}
		res.Spec[i]=p
	}
	return res
}

// Blurs a template by multiplying with a Gaussian template elementwise
func (t *Template) Blur(gauss *Template) *Template {
	res:=&Template{Width:t.Width, Height:t.Height, Spec:Multiply(t.Spec, gauss.Spec),
		Radius:t.Radius, Thickness:t.Thickness, Sigma:gauss.Sigma, Area:t.Area}
	return res
}

// Scales a template's spectrum by a real factor
func (t *Template) Scale(factor float64) *Template {
	res:=&Template{Width:t.Width, Height:t.Height, Spec:make([]complex128, len(t.Spec)),
		Radius:t.Radius, Thickness:t.Thickness, Sigma:t.Sigma, Area:t.Area}
	f:=complex(factor, 0)
	for i, v:=range t.Spec {
		res.Spec[i]=v*f
	}
	return res
}

// Cross-correlates an image spectrum with the template. The template spectra
// are real and symmetric, so conjugation is a no-op and the product is the
// correlation rather than the convolution
func (t *Template) CrossCorrelate(spec []complex128) []complex128 {
	return Multiply(spec, t.Spec)
}
