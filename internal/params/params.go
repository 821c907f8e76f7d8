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


package params

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/pbnjay/memory"
	"gopkg.in/yaml.v3"
)

// One explicit configuration object passed down the call graph, instead of
// threading thread counts, iteration caps and convergence thresholds through
// every call individually
type Params struct {
	// Execution context
	Log        io.Writer `yaml:"-" json:"-"`
	MaxThreads int       `yaml:"maxThreads" json:"maxThreads"` // parallelism degree for data-parallel loops
	MemoryMB   int       `yaml:"-" json:"memoryMB"`            // physical memory budget

	Radius   RadiusParams   `yaml:"radius"   json:"radius"`
	Symmetry SymmetryParams `yaml:"symmetry" json:"symmetry"`
	Align    AlignParams    `yaml:"align"    json:"align"`
	Spots    SpotParams     `yaml:"spots"    json:"spots"`
	Ellipse  EllipseParams  `yaml:"ellipse"  json:"ellipse"`
}

// Spot radius estimation stage
type RadiusParams struct {
	MinRadius     int     `yaml:"minRadius"     json:"minRadius"`     // smallest candidate spot radius, px
	MaxRadius     int     `yaml:"maxRadius"     json:"maxRadius"`     // largest candidate spot radius, px
	InitThickness int     `yaml:"initThickness" json:"initThickness"` // coarse grid spacing and initial annulus thickness, px
	MaxImages     int     `yaml:"maxImages"     json:"maxImages"`     // convergence cap on the number of processed images
	SpectrumBins  int     `yaml:"spectrumBins"  json:"spectrumBins"`  // bins of the radial frequency spectrum
	GaussSigma    float64 `yaml:"gaussSigma"    json:"gaussSigma"`    // low-pass blur sigma, px
	AutocorrDecay float64 `yaml:"autocorrDecay" json:"autocorrDecay"` // stop when the marginal autocorrelation gain drops below this
	RefineRange   int     `yaml:"refineRange"   json:"refineRange"`   // fine scan half-window around the coarse radius, px
}

// Mirror symmetry cross-check stage
type SymmetryParams struct {
	NumAngles      int `yaml:"numAngles"      json:"numAngles"`      // sampled angles over [0, pi)
	TargetSize     int `yaml:"targetSize"     json:"targetSize"`     // downsample while staying at least this large
	RefineEvals    int `yaml:"refineEvals"    json:"refineEvals"`    // function evaluation cap per axis refinement
}

// Alignment stage
type AlignParams struct {
	SharpenPasses int     `yaml:"sharpenPasses" json:"sharpenPasses"` // recursive self-convolutions of the annulus template
	GaussSigma    float64 `yaml:"gaussSigma"    json:"gaussSigma"`    // template blur sigma, px
	MinScore      float64 `yaml:"minScore"      json:"minScore"`      // pairwise measurements below this weight are dropped
}

// Spot location stage
type SpotParams struct {
	NoiseFraction   float64 `yaml:"noiseFraction"   json:"noiseFraction"`   // noise floor as a fraction of the strongest response
	LatticeTol      float64 `yaml:"latticeTol"      json:"latticeTol"`      // lattice consistency tolerance as a fraction of the radius
	MaxSpots        int     `yaml:"maxSpots"        json:"maxSpots"`        // hard cap on the argmax-then-blacken loop
}

// Ellipse fitting stage
type EllipseParams struct {
	ClusterFraction float64 `yaml:"clusterFraction" json:"clusterFraction"` // proportion of gradient values considered edge candidates
	ThresholdBins   int     `yaml:"thresholdBins"   json:"thresholdBins"`   // histogram bins of the proportional gradient threshold
	MaxIterations   int     `yaml:"maxIterations"   json:"maxIterations"`   // hyper-renormalization iteration cap
	ConvergeThresh  float64 `yaml:"convergeThresh"  json:"convergeThresh"`  // eigenvector similarity threshold terminating the iteration
	KMeansMaxIter   int     `yaml:"kMeansMaxIter"   json:"kMeansMaxIter"`   // weighted k-means iteration cap
	DistAccuracy    float64 `yaml:"distAccuracy"    json:"distAccuracy"`    // point-to-ellipse distance accuracy, px
	IncidenceBins   int     `yaml:"incidenceBins"   json:"incidenceBins"`   // background bins along the elongation axis for the beam side inference
}

// Returns the default parameter set, sized to the running host
func New(log io.Writer) *Params {
	return &Params{
		Log       : log,
		MaxThreads: runtime.GOMAXPROCS(0),
		MemoryMB  : int(memory.TotalMemory()/1024/1024),
		Radius: RadiusParams{
			MinRadius    : 8,
			MaxRadius    : 120,
			InitThickness: 5,
			MaxImages    : 10,
			SpectrumBins : 256,
			GaussSigma   : 2.0,
			AutocorrDecay: 1e-3,
			RefineRange  : 8,
		},
		Symmetry: SymmetryParams{
			NumAngles  : 120,
			TargetSize : 256,
			RefineEvals: 200,
		},
		Align: AlignParams{
			SharpenPasses: 2,
			GaussSigma   : 1.5,
			MinScore     : 0.01,
		},
		Spots: SpotParams{
			NoiseFraction: 0.2,
			LatticeTol   : 0.5,
			MaxSpots     : 256,
		},
		Ellipse: EllipseParams{
			ClusterFraction: 0.5,
			ThresholdBins  : 256,
			MaxIterations  : 50,
			ConvergeThresh : 1e-6,
			KMeansMaxIter  : 100,
			DistAccuracy   : 0.01,
			IncidenceBins  : 32,
		},
	}
}

// Loads parameter overrides from a YAML file on top of the defaults
func Load(fileName string, log io.Writer) (*Params, error) {
	p:=New(log)
	data, err:=os.ReadFile(fileName)
	if err!=nil { return nil, fmt.Errorf("reading parameter file %s: %w", fileName, err) }
	if err:=yaml.Unmarshal(data, p); err!=nil {
		return nil, fmt.Errorf("parsing parameter file %s: %w", fileName, err)
	}
	if p.MaxThreads<1 { p.MaxThreads=1 }
	return p, nil
}
