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
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Pearson normalised product moment correlation coefficient between two
// equal-length datasets. Returns 0 when either dataset has zero variance,
// rather than NaN
func Pearson(a, b []float64) float64 {
	return WeightedPearson(a, b, nil)
}

// Weighted Pearson correlation over gonum/stat. A nil weight slice means
// unit weights. Returns 0 when either dataset has zero weighted variance
// or no weight at all, rather than NaN
func WeightedPearson(a, b, weights []float64) float64 {
	if len(a)!=len(b) || len(a)==0 { return 0 }
	r:=stat.Correlation(a, b, weights)
	if math.IsNaN(r) { return 0 }
	return r
}

// Weighted first-order autocorrelation: the weighted Pearson correlation of
// a dataset with a copy of itself shifted by one element, weighted by the
// reciprocal squared per-element error estimates. 2-2*r approximates the
// Durbin-Watson statistic for large datasets
func WeightedAutocorr(data, errs []float64) float64 {
	if len(data)<2 { return 0 }
	n:=len(data)-1
	a:=data[:n]
	b:=data[1:]
	weights:=make([]float64, n)
	for i:=0; i<n; i++ {
		// combine the error estimates of both elements of the lagged pair
		e:=errs[i]*errs[i]+errs[i+1]*errs[i+1]
		weights[i]=1.0/(e+1e-12)
	}
	return WeightedPearson(a, b, weights)
}

// Error-weighted centroid of a binned spectrum: bin values are additionally
// weighted by their reciprocal squared errors, and positions are the bin
// centers given by min and binWidth. Bins must have equal width in the
// underlying coordinate, not just in index space
func WeightedCentroid(values, errs []float64, min, binWidth float64) float64 {
	num, den:=0.0, 0.0
	for i, v:=range values {
		w:=v/(errs[i]*errs[i]+1e-12)
		x:=min+(float64(i)+0.5)*binWidth
		num+=w*x
		den+=w
	}
	if den==0 { return 0 }
	return num/den
}

// Median of the data. Operates on a copy, the input is left untouched
func Median(data []float32) float32 {
	if len(data)==0 { return 0 }
	sorted:=make([]float32, len(data))
	copy(sorted, data)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i]<sorted[j] })
	return sorted[len(sorted)/2]
}

// Mean and standard deviation of the data
func MeanStdDev(data []float64) (mean, stdDev float64) {
	if len(data)==0 { return 0, 0 }
	for _, v:=range data { mean+=v }
	mean/=float64(len(data))
	varSum:=0.0
	for _, v:=range data {
		d:=v-mean
		varSum+=d*d
	}
	return mean, math.Sqrt(varSum/float64(len(data)))
}
