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


package radius

import (
	"fmt"
	"math"
	"sync"

	"diffatlas/internal/fourier"
	"diffatlas/internal/params"
	"diffatlas/internal/pattern"
	"diffatlas/internal/stats"
)

// Why the accumulation loop stopped
type StopReason int

const (
	Converged StopReason = iota // marginal autocorrelation gain fell below the decay threshold
	Exhausted                   // image cap reached without satisfying the threshold
)

func (r StopReason) String() string {
	if r==Converged { return "converged" }
	return "exhausted"
}

// A refined spot radius and annulus thickness estimate. Thickness is always
// odd. Images records how many frames contributed before the stopping rule
// fired; callers may inspect Reason to decide whether to trust the result
type Result struct {
	Radius    int
	Thickness int
	Images    int
	Reason    StopReason
}

// First spectral null of a disk of radius R lies at frequency 0.61/R, so the
// spectrum centroid maps back to a radius through this constant
const airyNull = 0.6098

// Maximum radial frequency of a 2D transform, cycles per pixel
var rhoMax = math.Sqrt(0.5)

// Determines the characteristic spot radius and annulus thickness of the
// stack. Images are convolved with Gaussian-blurred annuli over a coarse
// radius grid spaced by the initial thickness; each radius keeps a running
// radial frequency spectrum histogram, merged image by image, until the
// weighted first-order autocorrelation of the best histogram stops
// improving. The error-weighted centroid of the winner yields the coarse
// radius, which a fine scan then refines together with the thickness
func Estimate(images []*pattern.Image, cfg *params.Params) (Result, error) {
	if err:=pattern.ValidateStack(images); err!=nil { return Result{}, fmt.Errorf("radius estimation: %w", err) }
	rp:=cfg.Radius
	if rp.MinRadius<=0 || rp.MaxRadius<=rp.MinRadius {
		return Result{}, fmt.Errorf("radius estimation: invalid search window [%d,%d]", rp.MinRadius, rp.MaxRadius)
	}
	thickness:=fourier.OddThickness(rp.InitThickness)

	w, h:=images[0].Width, images[0].Height
	fft:=fourier.NewFFT2(w, h)
	gauss:=fourier.Gaussian(w, h, rp.GaussSigma)

	// one blurred annulus template and one running histogram per candidate radius
	var radii []int
	for r:=rp.MinRadius; r<=rp.MaxRadius; r+=thickness {
		radii=append(radii, r)
	}
	annuli:=make([]*fourier.Template, len(radii))
	hists :=make([]*stats.RunningHistogram, len(radii))
	for i, r:=range radii {
		annuli[i]=fourier.Annulus(w, h, r, thickness).Blur(gauss)
		hists[i]=stats.NewRunningHistogram(rp.SpectrumBins, 0, rhoMax)
	}

	maxImages:=rp.MaxImages
	if maxImages>len(images) { maxImages=len(images) }

	numImages, reason:=0, Exhausted
	prevBest:=-2.0
	for _, img:=range images[:maxImages] {
		spec, err:=fft.Forward(img)
		if err!=nil { return Result{}, err }
		blurred:=fourier.Multiply(spec, gauss.Spec)

		// merge this image's annulus responses into every radius histogram
		limiter:=make(chan bool, cfg.MaxThreads)
		wg:=sync.WaitGroup{}
		for i:=range radii {
			limiter<-true
			wg.Add(1)
			go func(i int) {
				defer func() { <-limiter; wg.Done() }()
				product:=annuli[i].CrossCorrelate(blurred)
				hists[i].Merge(radialSpectrum(product, w, h, rp.SpectrumBins))
			}(i)
		}
		wg.Wait()
		numImages++

		best:=-2.0
		for i:=range radii {
			if a:=hists[i].Autocorrelation(); a>best { best=a }
		}
		if numImages>1 && best-prevBest<rp.AutocorrDecay {
			reason=Converged
			break
		}
		prevBest=best
	}

	// coarse radius from the error-weighted centroid of the best-converged histogram
	bestIdx, bestAutocorr:=0, -2.0
	for i:=range radii {
		if a:=hists[i].Autocorrelation(); a>bestAutocorr {
			bestIdx, bestAutocorr=i, a
		}
	}
	coarse:=radii[bestIdx]
	if centroid:=hists[bestIdx].Centroid(); centroid>0 {
		r:=int(math.Round(airyNull/centroid))
		if r>=rp.MinRadius && r<=rp.MaxRadius {
			coarse=r
		}
	}
	fmt.Fprintf(cfg.Log, "Radius search %s after %d images: coarse radius %d (autocorr %.4f)\n",
		reason, numImages, coarse, bestAutocorr)

	refRad, refThick:=refine(fft, images[0], gauss, coarse, thickness, rp)
	fmt.Fprintf(cfg.Log, "Refined radius %d thickness %d\n", refRad, refThick)

	return Result{Radius:refRad, Thickness:refThick, Images:numImages, Reason:reason}, nil
}

// Scans radius and thickness at single-pixel resolution within the refine
// range of the coarse estimate, scoring each annulus by its peak blurred
// cross-correlation response against the gradient filtrate of the first
// image. Spot interiors are flat, so matching against the gradient keeps
// the optimum pinned to the edge ring. The bounded scan window enforces
// that the refined values stay near the coarse estimate
func refine(fft *fourier.FFT2, img *pattern.Image, gauss *fourier.Template, coarse, thickness int, rp params.RadiusParams) (rad, thick int) {
	spec, err:=fft.Forward(img.ScharrAmplitude())
	if err!=nil { return coarse, thickness }
	blurred:=fourier.Multiply(spec, gauss.Spec)

	lo, hi:=coarse-rp.RefineRange, coarse+rp.RefineRange
	if lo<1 { lo=1 }
	rad, thick=coarse, thickness
	bestScore:=-math.MaxFloat64
	for r:=lo; r<=hi; r++ {
		for t:=1; t<=2*thickness+1; t+=2 {
			annulus:=fourier.Annulus(fft.Width, fft.Height, r, t)
			corr, err:=fft.Inverse(annulus.CrossCorrelate(blurred))
			if err!=nil { continue }
			_, _, peak:=corr.ArgMax()
			if float64(peak)>bestScore {
				bestScore=float64(peak)
				rad, thick=r, t
			}
		}
	}
	return rad, thick
}

// Rebins the amplitudes of a frequency-domain product into a 1D radial
// spectrum with equal bin width in frequency space
func radialSpectrum(spec []complex128, w, h, bins int) []float64 {
	res:=make([]float64, bins)
	scale:=float64(bins-1)/rhoMax
	for ky:=0; ky<h; ky++ {
		fy:=fourier.FreqCoord(ky, h)
		for kx:=0; kx<w; kx++ {
			fx:=fourier.FreqCoord(kx, w)
			rho:=math.Sqrt(fx*fx+fy*fy)
			v:=spec[ky*w+kx]
			res[int(rho*scale)]+=math.Hypot(real(v), imag(v))
		}
	}
	return res
}
