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


package stats

import (
	"math"
)

// A running histogram accumulating contributions from successive images.
// Bins have equal width in the underlying coordinate (not index space),
// which keeps the centroid calculation meaningful. Per-bin first and second
// moments across contributions provide the error estimates used to weight
// the autocorrelation convergence signal
type RunningHistogram struct {
	Min      float64   // lower edge of bin 0
	BinWidth float64   // equal width of every bin in the underlying coordinate
	Sum      []float64 // per-bin sum of contributions
	SumSq    []float64 // per-bin sum of squared contributions
	Count    int       // number of merged contributions
}

// Creates a running histogram with the given number of equal-width bins
// covering [min, max)
func NewRunningHistogram(bins int, min, max float64) *RunningHistogram {
	return &RunningHistogram{
		Min     : min,
		BinWidth: (max-min)/float64(bins),
		Sum     : make([]float64, bins),
		SumSq   : make([]float64, bins),
	}
}

// Merges one contribution, a per-bin vector of the same length, into the
// running totals
func (h *RunningHistogram) Merge(contribution []float64) {
	for i, v:=range contribution {
		h.Sum[i]  +=v
		h.SumSq[i]+=v*v
	}
	h.Count++
}

// Per-bin mean across the merged contributions
func (h *RunningHistogram) Means() []float64 {
	means:=make([]float64, len(h.Sum))
	if h.Count==0 { return means }
	inv:=1.0/float64(h.Count)
	for i, v:=range h.Sum {
		means[i]=v*inv
	}
	return means
}

// Per-bin standard error estimates across the merged contributions. With a
// single contribution all errors are equal, leaving the autocorrelation
// weights uniform
func (h *RunningHistogram) Errors() []float64 {
	errs:=make([]float64, len(h.Sum))
	if h.Count<2 {
		for i:=range errs { errs[i]=1 }
		return errs
	}
	n:=float64(h.Count)
	for i:=range h.Sum {
		mean:=h.Sum[i]/n
		variance:=h.SumSq[i]/n-mean*mean
		if variance<0 { variance=0 }
		errs[i]=math.Sqrt(variance/n)+1e-12
	}
	return errs
}

// Convergence signal: the weighted first-order autocorrelation of the
// per-bin means, weighted by the reciprocal squared per-bin errors
func (h *RunningHistogram) Autocorrelation() float64 {
	return WeightedAutocorr(h.Means(), h.Errors())
}

// Error-weighted centroid of the per-bin means in the underlying coordinate
func (h *RunningHistogram) Centroid() float64 {
	return WeightedCentroid(h.Means(), h.Errors(), h.Min, h.BinWidth)
}
