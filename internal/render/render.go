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


// Package render draws diagnostic overlays of detected spots and fitted
// ellipses on top of the averaged diffraction pattern
package render

import (
	"bufio"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"

	"diffatlas/internal/ellipse"
	"diffatlas/internal/pattern"
	"diffatlas/internal/spots"
)

// Overlay renders the averaged pattern as a grayscale backdrop with one
// circle per detected spot and the outline of every successful ellipse
// fit. Spot hues cycle through HCL space so adjacent spots stay
// distinguishable
func Overlay(avg *pattern.Image, positions []spots.Position, fits []ellipse.Fit, radius int) *image.RGBA {
	img:=image.NewRGBA(image.Rect(0, 0, avg.Width, avg.Height))
	min, max:=valueRange(avg)
	scale:=1/(max-min)
	for y:=0; y<avg.Height; y++ {
		for x:=0; x<avg.Width; x++ {
			v:=(avg.Data[y*avg.Width+x]-min)*scale
			if v<0 { v=0 }
			if v>1 { v=1 }
			g:=uint8(v*255)
			img.SetRGBA(x, y, color.RGBA{g, g, g, 255})
		}
	}

	for i, p:=range positions {
		drawCircle(img, p.X, p.Y, radius, spotColor(i, len(positions)))
	}
	for i, f:=range fits {
		if f.Err!=nil || !f.Ellipse.IsEllipse { continue }
		c:=spotColor(i, len(fits))
		drawEllipse(img, &f.Ellipse, c)
		for _, p:=range f.Ellipse.ExtremalPoints() {
			drawCross(img, int(math.Round(p.X)), int(math.Round(p.Y)), 2, c)
		}
	}
	return img
}

// WritePNG writes an overlay image to a PNG file
func WritePNG(img image.Image, fileName string) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	defer writer.Flush()

	return png.Encode(writer, img)
}

func valueRange(img *pattern.Image) (min, max float32) {
	min, max=float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, v:=range img.Data {
		if v<min { min=v }
		if v>max { max=v }
	}
	if max<=min { max=min+1 }
	return min, max
}

func spotColor(i, n int) color.RGBA {
	if n<1 { n=1 }
	c:=colorful.Hcl(float64(i)*360/float64(n), 0.7, 0.7).Clamped()
	r, g, b:=c.RGB255()
	return color.RGBA{r, g, b, 255}
}

func drawCircle(img *image.RGBA, xc, yc, radius int, c color.RGBA) {
	steps:=int(2*math.Pi*float64(radius))+8
	for i:=0; i<steps; i++ {
		a:=2*math.Pi*float64(i)/float64(steps)
		setPixel(img, xc+int(math.Round(float64(radius)*math.Cos(a))), yc+int(math.Round(float64(radius)*math.Sin(a))), c)
	}
}

func drawEllipse(img *image.RGBA, e *ellipse.Ellipse, c color.RGBA) {
	steps:=int(2*math.Pi*math.Max(e.SemiA, e.SemiB))+8
	cos, sin:=math.Cos(e.Theta), math.Sin(e.Theta)
	for i:=0; i<steps; i++ {
		a:=2*math.Pi*float64(i)/float64(steps)
		ex, ey:=e.SemiA*math.Cos(a), e.SemiB*math.Sin(a)
		x:=e.CenterX+ex*cos-ey*sin
		y:=e.CenterY+ex*sin+ey*cos
		setPixel(img, int(math.Round(x)), int(math.Round(y)), c)
	}
}

func drawCross(img *image.RGBA, x, y, arm int, c color.RGBA) {
	for d:=-arm; d<=arm; d++ {
		setPixel(img, x+d, y, c)
		setPixel(img, x, y+d, c)
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if x<0 || y<0 || x>=img.Rect.Dx() || y>=img.Rect.Dy() { return }
	img.SetRGBA(x, y, c)
}
