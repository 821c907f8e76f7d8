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
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"diffatlas/internal/fourier"
	"diffatlas/internal/params"
	"diffatlas/internal/pattern"
)

// A pairwise alignment measurement between two images of the stack
type PairOffset struct {
	Dx, Dy int     // position of image B relative to image A
	Score  float64 // peak phase correlation value, used as the least-squares weight
	A, B   int     // stack indices of the two images
}

// Resolved integer position of one image relative to image 0
type RelativePosition struct {
	Dx int `json:"dx"`
	Dy int `json:"dy"`
}

// Priming state of one image during alignment
type imageState int

const (
	unprimed imageState = iota
	primed
	correlated
)

// Computes pairwise relative shifts between images using gradient-filtered,
// windowed phase correlation, and refines them into per-image positions
type Engine struct {
	cfg     *params.Params
	hann    *pattern.HannWindow
	gauss   *fourier.Template
	annulus *fourier.Template // blurred, recursively self-convolved
	circle  *fourier.Template // blurred
	width   int
	height  int
}

// Creates an alignment engine for stacks of the given dimensions, with
// annulus and circle matched filters built for the estimated spot geometry.
// The Hann window look-up table is computed once here and reused for every
// frame
func NewEngine(width, height, radius, thickness int, cfg *params.Params) *Engine {
	gauss:=fourier.Gaussian(width, height, cfg.Align.GaussSigma)
	annulus:=fourier.RecursiveSelfConvolution(fourier.Annulus(width, height, radius, thickness).Blur(gauss), cfg.Align.SharpenPasses)
	circle:=fourier.Circle(width, height, radius).Blur(gauss)
	return &Engine{
		cfg    : cfg,
		hann   : pattern.NewHannWindow(width, height),
		gauss  : gauss,
		annulus: annulus,
		circle : circle,
		width  : width,
		height : height,
	}
}

// Primes an image for alignment: Hann window, gradient-magnitude filtrate,
// transform, then cross-correlation with the annulus template after scaling
// it by the reciprocal peak of the image's own circle correlation. The
// result emphasizes spot edges and suppresses uniform background. Returned
// in the frequency domain, ready for phase correlation
func (e *Engine) prime(fft *fourier.FFT2, img *pattern.Image) ([]complex128, error) {
	windowed:=e.hann.Apply(img)
	grad:=windowed.ScharrAmplitude()
	spec, err:=fft.Forward(grad)
	if err!=nil { return nil, err }

	// normalize overall spot strength by the circle correlation peak
	rawSpec, err:=fft.Forward(windowed)
	if err!=nil { return nil, err }
	circCorr, err:=fft.Inverse(e.circle.CrossCorrelate(rawSpec))
	if err!=nil { return nil, err }
	_, _, peak:=circCorr.ArgMax()
	scale:=1.0
	if peak>0 { scale=1.0/float64(peak) }

	return e.annulus.Scale(scale).CrossCorrelate(spec), nil
}

// Computes the relative position of every image in the stack to image 0.
// All images are primed, all pairs are phase-correlated (full pairwise
// redundancy, not a spanning tree), and a score-weighted least-squares
// refinement resolves one consistent position per image. Also returns the
// raw pairwise measurements for diagnostics
func (e *Engine) ComputeRelativePositions(images []*pattern.Image) ([]RelativePosition, []PairOffset, error) {
	if err:=pattern.ValidateStack(images); err!=nil { return nil, nil, fmt.Errorf("alignment: %w", err) }
	n:=len(images)
	if n==1 { return []RelativePosition{{0, 0}}, nil, nil }

	states:=make([]imageState, n)
	specs:=make([][]complex128, n)

	// prime all images in parallel, one FFT plan per worker
	limiter:=make(chan bool, e.cfg.MaxThreads)
	wg:=sync.WaitGroup{}
	errs:=make([]error, n)
	for i:=range images {
		limiter<-true
		wg.Add(1)
		go func(i int) {
			defer func() { <-limiter; wg.Done() }()
			fft:=fourier.NewFFT2(e.width, e.height)
			specs[i], errs[i]=e.prime(fft, images[i])
		}(i)
	}
	wg.Wait()
	for i, err:=range errs {
		if err!=nil { return nil, nil, fmt.Errorf("priming image %d: %w", i, err) }
		states[i]=primed
	}

	// phase-correlate every pair; pairing requires both images primed
	type pairTask struct{ a, b int }
	var tasks []pairTask
	for i:=0; i<n; i++ {
		for j:=i+1; j<n; j++ {
			if states[i]!=primed || states[j]!=primed { continue }
			tasks=append(tasks, pairTask{i, j})
		}
	}
	pairs:=make([]PairOffset, len(tasks))
	for t:=range tasks {
		limiter<-true
		wg.Add(1)
		go func(t int) {
			defer func() { <-limiter; wg.Done() }()
			fft:=fourier.NewFFT2(e.width, e.height)
			dx, dy, score:=fft.MaxPhaseCorr(specs[tasks[t].a], specs[tasks[t].b])
			pairs[t]=PairOffset{Dx:dx, Dy:dy, Score:score, A:tasks[t].a, B:tasks[t].b}
		}(t)
	}
	wg.Wait()
	for _, p:=range pairs {
		states[p.A], states[p.B]=correlated, correlated
	}

	// refinement requires the full pairwise redundancy, not a spanning tree
	for i, s:=range states {
		if s!=correlated {
			return nil, nil, fmt.Errorf("alignment: image %d has no pairwise correlation measurement", i)
		}
	}

	positions, err:=RefineRelativePositions(pairs, n, e.cfg.Align.MinScore)
	if err!=nil { return nil, nil, err }
	return positions, pairs, nil
}

// Combines all pairwise measurements into one consistent integer position
// per image relative to image 0, by weighted least squares over the
// measurement graph. Measurements below minScore are dropped; the remaining
// graph must still connect every image to image 0
func RefineRelativePositions(pairs []PairOffset, n int, minScore float64) ([]RelativePosition, error) {
	kept:=pairs[:0:0]
	for _, p:=range pairs {
		if p.Score>=minScore { kept=append(kept, p) }
	}
	if err:=checkConnected(kept, n); err!=nil { return nil, err }

	// image 0 is pinned at the origin; solve for the remaining n-1 positions,
	// x and y independently, each measurement row weighted by its score
	m:=len(kept)
	a:=mat.NewDense(m, n-1, nil)
	bx:=mat.NewVecDense(m, nil)
	by:=mat.NewVecDense(m, nil)
	for i, p:=range kept {
		w:=math.Sqrt(p.Score)
		if p.A>0 { a.Set(i, p.A-1, -w) }
		if p.B>0 { a.Set(i, p.B-1, w) }
		bx.SetVec(i, w*float64(p.Dx))
		by.SetVec(i, w*float64(p.Dy))
	}

	var sx, sy mat.VecDense
	if err:=sx.SolveVec(a, bx); err!=nil { return nil, fmt.Errorf("alignment refinement: %w", err) }
	if err:=sy.SolveVec(a, by); err!=nil { return nil, fmt.Errorf("alignment refinement: %w", err) }

	positions:=make([]RelativePosition, n)
	for i:=1; i<n; i++ {
		positions[i]=RelativePosition{
			Dx: int(math.Round(sx.AtVec(i-1))),
			Dy: int(math.Round(sy.AtVec(i-1))),
		}
	}
	return positions, nil
}

// Verifies that the measurement graph reaches every image from image 0
func checkConnected(pairs []PairOffset, n int) error {
	adj:=make([][]int, n)
	for _, p:=range pairs {
		adj[p.A]=append(adj[p.A], p.B)
		adj[p.B]=append(adj[p.B], p.A)
	}
	seen:=make([]bool, n)
	queue:=[]int{0}
	seen[0]=true
	for len(queue)>0 {
		v:=queue[0]
		queue=queue[1:]
		for _, u:=range adj[v] {
			if !seen[u] {
				seen[u]=true
				queue=append(queue, u)
			}
		}
	}
	for i, s:=range seen {
		if !s { return fmt.Errorf("alignment: image %d not connected to image 0 by any usable pairwise measurement", i) }
	}
	return nil
}
