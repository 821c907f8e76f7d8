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


// Package rest exposes atlas analysis as a small HTTP API. Jobs stream
// their log back as plain text while they run
package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"runtime"

	"github.com/gin-gonic/gin"

	"diffatlas/internal/params"
	"diffatlas/internal/pattern"
	"diffatlas/internal/pipeline"
	"diffatlas/internal/radius"
	"diffatlas/internal/tiffio"
)

func Serve() {
	r:=gin.Default()
	api:=r.Group("/api")
	{
		v1:=api.Group("/v1")
		{
			v1.GET ("/ping",    getPing)
			v1.POST("/analyze", postAnalyze)
			v1.POST("/radius",  postRadius)
		}
	}
	r.Run() // listen and serve on 0.0.0.0:8080
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postAnalyzeArgs struct {
	FilePatterns []string       `json:"filePatterns"`
	Params       *params.Params `json:"params"`
}

// Runs the full pipeline on the globbed input files and streams the log.
// The final result summary is appended as JSON after the log
func postAnalyze(c *gin.Context) {
	logWriter:=c.Writer
	var args postAnalyzeArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	header:=logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	cfg:=jobParams(args.Params, logWriter)

	images, err:=loadPatterns(args.FilePatterns, logWriter)
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		return
	}

	res, err:=pipeline.Run(images, cfg)
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		return
	}
	summary:=gin.H{
		"radius":    res.Radius.Radius,
		"thickness": res.Radius.Thickness,
		"positions": res.Positions,
		"spots":     res.Spots,
		"lattice":   res.Lattice,
		"fits":      res.Fits,
	}
	if err:=printArgs(logWriter, "Result:\n", "\n", summary); err!=nil {
		fmt.Fprintf(logWriter, "Error printing result: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()
}

type postRadiusArgs struct {
	FilePatterns []string       `json:"filePatterns"`
	Params       *params.Params `json:"params"`
}

// Runs only the radius estimation stage, for quick parameter probing
func postRadius(c *gin.Context) {
	logWriter:=c.Writer
	var args postRadiusArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	header:=logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	cfg:=jobParams(args.Params, logWriter)

	images, err:=loadPatterns(args.FilePatterns, logWriter)
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		return
	}

	res, err:=radius.Estimate(images, cfg)
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		return
	}
	if err:=printArgs(logWriter, "Result:\n", "\n", res); err!=nil {
		fmt.Fprintf(logWriter, "Error printing result: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()
}

// Completes job-supplied parameters: attaches the response log writer and
// guards against a missing thread count, which would stall the limiters
func jobParams(cfg *params.Params, logWriter io.Writer) *params.Params {
	if cfg==nil {
		return params.New(logWriter)
	}
	cfg.Log=logWriter
	if cfg.MaxThreads<1 { cfg.MaxThreads=runtime.GOMAXPROCS(0) }
	return cfg
}

// Globs the file patterns and reads the matching TIFF stack
func loadPatterns(patterns []string, logWriter io.Writer) ([]*pattern.Image, error) {
	var fileNames []string
	for _, p:=range patterns {
		matches, err:=filepath.Glob(p)
		if err!=nil { return nil, fmt.Errorf("bad pattern %s: %w", p, err) }
		fileNames=append(fileNames, matches...)
	}
	return tiffio.ReadStack(fileNames, logWriter)
}
