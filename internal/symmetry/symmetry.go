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


package symmetry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"diffatlas/internal/params"
	"diffatlas/internal/pattern"
)

// A mirror axis of the diffraction pattern: a point on the line, the line
// angle in [0, pi), and the mirror correlation score at the refined optimum
type Axis struct {
	OriginX, OriginY float64
	Angle            float64
	Score            float64
}

// Result of the symmetry analysis. The center estimate serves as a
// cross-check against the alignment-derived origin, not as a hard input
// to later stages
type Result struct {
	Axes    []Axis
	Curve   []float64
	CenterX float64
	CenterY float64
}

// Candidate axis counts to test against the power spectrum of the angular
// correlation curve. Diffraction patterns have 2, 3, 4 or 6 fold mirror
// families
var axisCandidates=[]int{2, 3, 4, 6}

// FindAxes locates approximate mirror symmetry axes of the averaged
// pattern. The image is downsampled by the largest power of two that keeps
// it at least the target size, the mirror correlation is sampled over
// numAngles angles in [0, pi), and the number of axes is estimated from
// the power spectrum of that curve. Each candidate axis is then refined
// into a continuous (origin, angle) triple by direct search
func FindAxes(avg *pattern.Image, originX, originY float64, cfg *params.Params) (*Result, error) {
	numAngles:=cfg.Symmetry.NumAngles
	if numAngles<4 {
		return nil, fmt.Errorf("symmetry analysis: need at least 4 angles, have %d", numAngles)
	}
	ds:=avg.DownsampleTo(cfg.Symmetry.TargetSize)
	scale:=float64(avg.Width)/float64(ds.Width)
	ox, oy:=originX/scale, originY/scale

	curve:=make([]float64, numAngles)
	for k:=range curve {
		curve[k]=mirrorCorrelation(ds, ox, oy, float64(k)*math.Pi/float64(numAngles))
	}

	numAxes, power:=countAxes(curve)
	fmt.Fprintf(cfg.Log, "Symmetry: %d mirror axes (power %.3g) from %d sampled angles\n", numAxes, power, numAngles)

	res:=&Result{Curve: curve}
	for _, k:=range maximaIndices(curve, numAxes) {
		axis:=refineAxis(ds, ox, oy, float64(k)*math.Pi/float64(numAngles), cfg.Symmetry.RefineEvals)
		axis.OriginX*=scale
		axis.OriginY*=scale
		res.Axes=append(res.Axes, axis)
	}
	res.CenterX, res.CenterY=center(res.Axes)
	return res, nil
}

// Mirror correlation of the image with its reflection about the line
// through (ox, oy) at the given angle. Pixels whose reflection falls
// outside the image are skipped
func mirrorCorrelation(img *pattern.Image, ox, oy, angle float64) float64 {
	dx, dy:=math.Cos(angle), math.Sin(angle)
	orig:=make([]float64, 0, len(img.Data))
	refl:=make([]float64, 0, len(img.Data))
	for y:=0; y<img.Height; y++ {
		for x:=0; x<img.Width; x++ {
			vx, vy:=float64(x)-ox, float64(y)-oy
			dot:=vx*dx+vy*dy
			rx, ry:=ox+2*dot*dx-vx, oy+2*dot*dy-vy
			v, ok:=img.Bilinear(rx, ry)
			if !ok { continue }
			orig=append(orig, float64(img.Data[y*img.Width+x]))
			refl=append(refl, float64(v))
		}
	}
	if len(orig)<2 { return 0 }
	r:=stat.Correlation(orig, refl, nil)
	if math.IsNaN(r) { return 0 }
	return r
}

// Estimates the number of mirror axes from the power spectrum of the
// angular correlation curve. An n-axis pattern makes the curve periodic
// with n periods over [0, pi), so the spectrum concentrates at component
// n. Returns the candidate count with the strongest component
func countAxes(curve []float64) (n int, power float64) {
	fft:=fourier.NewFFT(len(curve))
	coeffs:=fft.Coefficients(nil, curve)
	best, bestPower:=axisCandidates[0], -1.0
	for _, c:=range axisCandidates {
		if c>=len(coeffs) { continue }
		p:=real(coeffs[c])*real(coeffs[c])+imag(coeffs[c])*imag(coeffs[c])
		if p>bestPower {
			best, bestPower=c, p
		}
	}
	return best, bestPower
}

// Picks n maxima from the curve assuming equal spacing: the global maximum
// anchors the comb, and each expected position is sharpened to the local
// maximum within a quarter period
func maximaIndices(curve []float64, n int) []int {
	numAngles:=len(curve)
	spacing:=float64(numAngles)/float64(n)
	window:=int(spacing/4)
	if window<1 { window=1 }

	first, best:=0, math.Inf(-1)
	for k, v:=range curve {
		if v>best { first, best=k, v }
	}
	indices:=make([]int, 0, n)
	for j:=0; j<n; j++ {
		k:=(first+int(math.Round(float64(j)*spacing)))%numAngles
		indices=append(indices, localCurveMax(curve, k, window))
	}
	return indices
}

func localCurveMax(curve []float64, k, window int) int {
	best, bestVal:=k, math.Inf(-1)
	for d:=-window; d<=window; d++ {
		i:=((k+d)%len(curve)+len(curve))%len(curve)
		if curve[i]>bestVal {
			best, bestVal=i, curve[i]
		}
	}
	return best
}

// Refines an axis to a continuous (origin, angle) triple by maximizing the
// mirror correlation with Nelder-Mead from the grid estimate
func refineAxis(img *pattern.Image, ox, oy, angle float64, maxEvals int) Axis {
	problem:=optimize.Problem{
		Func: func(x []float64) float64 {
			return -mirrorCorrelation(img, x[0], x[1], x[2])
		},
	}
	settings:=&optimize.Settings{FuncEvaluations: maxEvals}
	res, err:=optimize.Minimize(problem, []float64{ox, oy, angle}, settings, &optimize.NelderMead{})
	if err!=nil || res==nil {
		return Axis{ox, oy, angle, mirrorCorrelation(img, ox, oy, angle)}
	}
	a:=math.Mod(res.X[2], math.Pi)
	if a<0 { a+=math.Pi }
	return Axis{res.X[0], res.X[1], a, -res.F}
}

// Estimates the symmetry center as the mean of all pairwise axis
// intersections. Near-parallel pairs contribute nothing; if no pair
// intersects, falls back to the average of the axis origins
func center(axes []Axis) (cx, cy float64) {
	var sumX, sumY float64
	count:=0
	for i:=0; i<len(axes); i++ {
		for j:=i+1; j<len(axes); j++ {
			x, y, ok:=intersect(axes[i], axes[j])
			if !ok { continue }
			sumX+=x
			sumY+=y
			count++
		}
	}
	if count>0 {
		return sumX/float64(count), sumY/float64(count)
	}
	for _, a:=range axes {
		sumX+=a.OriginX
		sumY+=a.OriginY
	}
	if len(axes)==0 { return 0, 0 }
	return sumX/float64(len(axes)), sumY/float64(len(axes))
}

func intersect(a, b Axis) (x, y float64, ok bool) {
	d1x, d1y:=math.Cos(a.Angle), math.Sin(a.Angle)
	d2x, d2y:=math.Cos(b.Angle), math.Sin(b.Angle)
	det:=d1x*d2y-d1y*d2x
	if math.Abs(det)<1e-9 { return 0, 0, false }
	t:=((b.OriginX-a.OriginX)*d2y-(b.OriginY-a.OriginY)*d2x)/det
	return a.OriginX+t*d1x, a.OriginY+t*d1y, true
}
