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


package ellipse

import (
	"math"
	"sort"

	"github.com/valyala/fastrand"
)

// WeightedKMeans clusters scalar samples into k groups by weighted
// Lloyd iteration. Centers are seeded at the weighted quantiles of the
// sample distribution, which makes the result deterministic; only the
// rare empty-cluster reseed draws randomly. Returned centers are sorted
// ascending, and labels index into that sorted order
func WeightedKMeans(samples, weights []float64, k, maxIter int) (centers []float64, labels []int) {
	if len(samples)==0 || k<1 { return nil, nil }
	if k>len(samples) { k=len(samples) }

	centers=quantileSeeds(samples, weights, k)
	labels=make([]int, len(samples))

	var rng fastrand.RNG
	sums:=make([]float64, k)
	wsum:=make([]float64, k)
	for iter:=0; iter<maxIter; iter++ {
		changed:=false
		for i, s:=range samples {
			best, bestDist:=0, math.Inf(1)
			for j, c:=range centers {
				if d:=math.Abs(s-c); d<bestDist {
					best, bestDist=j, d
				}
			}
			if labels[i]!=best {
				labels[i]=best
				changed=true
			}
		}
		if !changed && iter>0 { break }

		for j:=range centers {
			sums[j], wsum[j]=0, 0
		}
		for i, s:=range samples {
			w:=weights[i]
			sums[labels[i]]+=w*s
			wsum[labels[i]]+=w
		}
		for j:=range centers {
			if wsum[j]>0 {
				centers[j]=sums[j]/wsum[j]
			} else {
				centers[j]=samples[rng.Uint32n(uint32(len(samples)))]
			}
		}
	}

	// sort centers ascending and remap labels
	order:=make([]int, k)
	for j:=range order { order[j]=j }
	sort.Slice(order, func(a, b int) bool { return centers[order[a]]<centers[order[b]] })
	sorted:=make([]float64, k)
	remap:=make([]int, k)
	for rank, j:=range order {
		sorted[rank]=centers[j]
		remap[j]=rank
	}
	for i:=range labels {
		labels[i]=remap[labels[i]]
	}
	return sorted, labels
}

// Seeds centers at the (j+0.5)/k weighted quantiles of the samples
func quantileSeeds(samples, weights []float64, k int) []float64 {
	idx:=make([]int, len(samples))
	for i:=range idx { idx[i]=i }
	sort.Slice(idx, func(a, b int) bool { return samples[idx[a]]<samples[idx[b]] })

	total:=0.0
	for _, w:=range weights { total+=w }
	centers:=make([]float64, k)
	cum, next:=0.0, 0
	for _, i:=range idx {
		cum+=weights[i]
		for next<k && cum>=total*(float64(next)+0.5)/float64(k) {
			centers[next]=samples[i]
			next++
		}
	}
	for ; next<k; next++ {
		centers[next]=samples[idx[len(idx)-1]]
	}
	return centers
}
