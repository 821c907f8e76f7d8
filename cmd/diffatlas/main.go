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

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"time"

	"github.com/klauspost/cpuid"

	"diffatlas/internal/ellipse"
	"diffatlas/internal/params"
	"diffatlas/internal/pipeline"
	"diffatlas/internal/radius"
	"diffatlas/internal/render"
	"diffatlas/internal/rest"
	"diffatlas/internal/spots"
	"diffatlas/internal/tiffio"
)

const version="0.1.0"

var cpuprofile=flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile=flag.String("memprofile", "", "write memory profile to `file`")

var paramFile=flag.String("params", "", "load analysis parameters from YAML `file`")
var out      =flag.String("out", "atlas", "`prefix` for output files")
var avg      =flag.String("avg", "%auto", "save aligned average as 16-bit TIFF to `file`. %auto derives from -out")
var overlay  =flag.String("overlay", "%auto", "save spot/ellipse overlay as PNG to `file`. %auto derives from -out")
var maps     =flag.String("maps", "", "save per-spot maps with given filename pattern, e.g. `spot%04d.tif`")
var result   =flag.String("result", "%auto", "save result summary as JSON to `file`. %auto derives from -out")

var maxThreads=flag.Int("maxThreads", 0, "parallelism degree, 0=number of CPUs")
var minRadius =flag.Int("minRadius", 0, "smallest candidate spot radius in px, 0=default")
var maxRadius =flag.Int("maxRadius", 0, "largest candidate spot radius in px, 0=default")
var noiseFrac =flag.Float64("noiseFraction", 0, "spot noise floor as fraction of strongest response, 0=default")

var chroot=flag.String("chroot", "", "serve mode: change filesystem root to `dir` before serving (requires root)")
var setuid=flag.Int("setuid", -1, "serve mode: switch to this user id after chroot, -1=don't")

func main() {
	logWriter:=io.Writer(os.Stdout)
	debug.SetGCPercent(10)
	start:=time.Now()
	flag.Usage=func() {
		fmt.Fprintf(logWriter, `Diffatlas Copyright (c) 2026 The diffatlas authors
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (analyze|radius|serve|legal|version) (img0.tif ... imgn.tif)

Commands:
  analyze Run the full atlas pipeline on the input stack
  radius  Estimate the characteristic spot radius only
  serve   Accept analysis jobs over HTTP on port 8080
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	fmt.Fprintf(logWriter, "diffatlas %s on %s with %d cores (AVX2 %v)\n",
		version, cpuid.CPU.BrandName, runtime.NumCPU(), cpuid.CPU.AVX2())

	if *cpuprofile!="" {
		f, err:=os.Create(*cpuprofile)
		if err!=nil {
			fmt.Fprintf(logWriter, "Could not create CPU profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer f.Close()
		if err:=pprof.StartCPUProfile(f); err!=nil {
			fmt.Fprintf(logWriter, "Could not start CPU profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer pprof.StopCPUProfile()
	}

	args:=flag.Args()
	if len(args)<1 {
		flag.Usage()
		return
	}

	cfg, err:=loadParams(logWriter)
	if err!=nil {
		fmt.Fprintf(logWriter, "Error loading parameters: %s\n", err.Error())
		os.Exit(-1)
	}

	switch args[0] {
	case "serve":
		rest.MakeSandbox(*chroot, *setuid)
		rest.Serve()

	case "analyze":
		err=cmdAnalyze(args[1:], cfg, logWriter)

	case "radius":
		err=cmdRadius(args[1:], cfg, logWriter)

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))

	if *memprofile!="" {
		f, err:=os.Create(*memprofile)
		if err!=nil {
			fmt.Fprintf(logWriter, "Could not create memory profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err:=pprof.Lookup("allocs").WriteTo(f, 0); err!=nil {
			fmt.Fprintf(logWriter, "Could not write allocation profile: %s\n", err.Error())
			os.Exit(-1)
		}
	}

	if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
}

// Builds the parameter set from defaults, optional YAML file and command
// line overrides, in that order
func loadParams(logWriter io.Writer) (*params.Params, error) {
	var cfg *params.Params
	var err error
	if *paramFile!="" {
		cfg, err=params.Load(*paramFile, logWriter)
		if err!=nil { return nil, err }
	} else {
		cfg=params.New(logWriter)
	}
	if *maxThreads>0 { cfg.MaxThreads=*maxThreads }
	if *minRadius>0  { cfg.Radius.MinRadius=*minRadius }
	if *maxRadius>0  { cfg.Radius.MaxRadius=*maxRadius }
	if *noiseFrac>0  { cfg.Spots.NoiseFraction=*noiseFrac }
	return cfg, nil
}

func cmdAnalyze(fileNames []string, cfg *params.Params, logWriter io.Writer) error {
	images, err:=tiffio.ReadStack(globAll(fileNames), logWriter)
	if err!=nil { return err }

	res, err:=pipeline.Run(images, cfg)
	if err!=nil { return err }

	if name:=autoName(*avg, ".tif"); name!="" {
		min, max:=tiffio.Range(res.Average)
		fmt.Fprintf(logWriter, "Writing aligned average to %s ...\n", name)
		if err:=tiffio.WriteTIFF16ToFile(res.Average, name, min, max, 1); err!=nil { return err }
	}
	if name:=autoName(*overlay, ".png"); name!="" {
		fmt.Fprintf(logWriter, "Writing overlay to %s ...\n", name)
		img:=render.Overlay(res.Average, res.Spots, res.Fits, res.Radius.Radius)
		if err:=render.WritePNG(img, name); err!=nil { return err }
	}
	if *maps!="" {
		for i, m:=range res.Maps {
			name:=fmt.Sprintf(*maps, i)
			mean:=m.Mean()
			min, max:=tiffio.Range(mean)
			if err:=tiffio.WriteTIFF16ToFile(mean, name, min, max, 1); err!=nil { return err }
		}
		fmt.Fprintf(logWriter, "Wrote %d spot maps\n", len(res.Maps))
	}
	if name:=autoName(*result, ".json"); name!="" {
		fmt.Fprintf(logWriter, "Writing result summary to %s ...\n", name)
		if err:=writeSummary(res, name); err!=nil { return err }
	}
	return nil
}

func cmdRadius(fileNames []string, cfg *params.Params, logWriter io.Writer) error {
	images, err:=tiffio.ReadStack(globAll(fileNames), logWriter)
	if err!=nil { return err }

	res, err:=radius.Estimate(images, cfg)
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "Spot radius %d px, annulus thickness %d px (%s after %d images)\n",
		res.Radius, res.Thickness, res.Reason, res.Images)
	return nil
}

func globAll(patterns []string) []string {
	var fileNames []string
	for _, p:=range patterns {
		matches, err:=filepath.Glob(p)
		if err!=nil || len(matches)==0 {
			fileNames=append(fileNames, p)
			continue
		}
		fileNames=append(fileNames, matches...)
	}
	return fileNames
}

// Expands %auto output names from the -out prefix
func autoName(value, suffix string) string {
	if value=="%auto" {
		if *out=="" { return "" }
		return *out+suffix
	}
	return value
}

type summary struct {
	Radius    int                   `json:"radius"`
	Thickness int                   `json:"thickness"`
	Spots     []spots.Position      `json:"spots"`
	Lattice   []spots.LatticeVector `json:"lattice"`
	Ellipses  []fitSummary          `json:"ellipses"`
	Incidence int                   `json:"incidence"`
}

// One fit plus the four extremal points of its ellipse in image coordinates
type fitSummary struct {
	ellipse.Fit
	Extremal []ellipse.Point `json:"extremal,omitempty"`
}

func writeSummary(res *pipeline.Result, fileName string) error {
	s:=summary{
		Radius:    res.Radius.Radius,
		Thickness: res.Radius.Thickness,
		Spots:     res.Spots,
		Lattice:   res.Lattice,
		Ellipses:  make([]fitSummary, 0, len(res.Fits)),
		Incidence: res.Incidence,
	}
	for _, f:=range res.Fits {
		fs:=fitSummary{Fit:f}
		if f.Err==nil && f.Ellipse.IsEllipse {
			p:=f.Ellipse.ExtremalPoints()
			fs.Extremal=p[:]
		}
		s.Ellipses=append(s.Ellipses, fs)
	}
	m, err:=json.MarshalIndent(s, "", "  ")
	if err!=nil { return err }
	return os.WriteFile(fileName, m, 0644)
}
