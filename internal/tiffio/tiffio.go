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


// Package tiffio reads diffraction pattern stacks from TIFF files and
// writes 16-bit grayscale TIFF diagnostics
package tiffio

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"

	"diffatlas/internal/pattern"
)

// ReadFile reads a grayscale or color TIFF into a pattern image. Color
// pixels are converted to luminance
func ReadFile(fileName string, id int) (*pattern.Image, error) {
	file, err:=os.Open(fileName)
	if err!=nil { return nil, err }
	defer file.Close()

	t, err:=tiff.Decode(bufio.NewReader(file))
	if err!=nil { return nil, fmt.Errorf("%s: %w", fileName, err) }

	width, height:=t.Bounds().Dx(), t.Bounds().Dy()
	img:=pattern.NewImage(width, height)
	img.ID, img.FileName=id, fileName
	gray16:=image.NewGray16(t.Bounds())
	switch typed:=t.(type) {
	case *image.Gray16:
		gray16=typed
	default:
		for y:=t.Bounds().Min.Y; y<t.Bounds().Max.Y; y++ {
			for x:=t.Bounds().Min.X; x<t.Bounds().Max.X; x++ {
				gray16.Set(x, y, color.Gray16Model.Convert(t.At(x, y)))
			}
		}
	}
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			img.Data[y*width+x]=float32(gray16.Gray16At(gray16.Bounds().Min.X+x, gray16.Bounds().Min.Y+y).Y)
		}
	}
	return img, nil
}

// ReadStack reads a stack of TIFF files, assigning image IDs in argument
// order. Dimension agreement is checked by the caller via
// pattern.ValidateStack
func ReadStack(fileNames []string, log io.Writer) ([]*pattern.Image, error) {
	if len(fileNames)==0 {
		return nil, fmt.Errorf("no input files given")
	}
	images:=make([]*pattern.Image, len(fileNames))
	for i, fileName:=range fileNames {
		img, err:=ReadFile(fileName, i)
		if err!=nil { return nil, err }
		images[i]=img
		fmt.Fprintf(log, "%d: read %s (%dx%d)\n", i, fileName, img.Width, img.Height)
	}
	return images, nil
}

// WriteTIFF16 writes the image as uncompressed 16-bit grayscale TIFF,
// mapping [min, max] to the full range with the given gamma. NaNs and
// values below min map to black
func WriteTIFF16(img *pattern.Image, writer io.Writer, min, max, gamma float32) error {
	out:=image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	scale:=1/(max-min)
	gammaInv:=float64(1/gamma)
	for y:=0; y<img.Height; y++ {
		for x:=0; x<img.Width; x++ {
			gray:=(img.Data[y*img.Width+x]-min)*scale
			if math.IsNaN(float64(gray)) || gray<0 { gray=0 }
			if gray>1 { gray=1 }
			if gammaInv!=1.0 {
				gray=float32(math.Pow(float64(gray), gammaInv))
			}
			out.SetGray16(x, y, color.Gray16{uint16(gray*65535)})
		}
	}
	return tiff.Encode(writer, out, &tiff.Options{Compression:tiff.Uncompressed, Predictor:false})
}

// WriteTIFF16ToFile writes the image to a 16-bit grayscale TIFF file
func WriteTIFF16ToFile(img *pattern.Image, fileName string, min, max, gamma float32) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	defer writer.Flush()

	return WriteTIFF16(img, writer, min, max, gamma)
}

// Range returns the value range of the image for export scaling. Equal
// min and max are spread so the scale stays finite
func Range(img *pattern.Image) (min, max float32) {
	min, max=float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, v:=range img.Data {
		if v<min { min=v }
		if v>max { max=v }
	}
	if max<=min { max=min+1 }
	return min, max
}
