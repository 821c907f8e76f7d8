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
)

// A conic in general form A x^2 + B xy + C y^2 + D x + E y + F = 0
type Conic struct {
	A, B, C, D, E, F float64
}

// Evaluates the conic polynomial at (x,y). Zero on the curve
func (c *Conic) Eval(x, y float64) float64 {
	return c.A*x*x + c.B*x*y + c.C*y*y + c.D*x + c.E*y + c.F
}

// Gradient of the conic polynomial at (x,y)
func (c *Conic) Gradient(x, y float64) (gx, gy float64) {
	return 2*c.A*x + c.B*y + c.D, c.B*x + 2*c.C*y + c.E
}

// An ellipse in geometric form: center, semi-axes and the rotation of the
// first axis, with the rotation in [0, pi/2)
type Ellipse struct {
	CenterX   float64 `json:"centerX"`
	CenterY   float64 `json:"centerY"`
	SemiA     float64 `json:"semiA"`
	SemiB     float64 `json:"semiB"`
	Theta     float64 `json:"theta"`
	IsEllipse bool    `json:"isEllipse"`
}

// A point on the image plane
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Converts a conic to center/axes/angle form. Degenerate or non-elliptical
// conics, those with 4AC-B^2 <= 0, yield IsEllipse false and undefined
// geometry. The rotation angle is 0.5*atan(B/(A-C)), shifted into
// [0, pi/2) by adding pi/2 when negative
func (c *Conic) ToEllipse() Ellipse {
	if 4*c.A*c.C-c.B*c.B<=0 {
		return Ellipse{}
	}
	var theta float64
	if c.A==c.C {
		theta=math.Pi/4
		if c.B<0 { theta=-math.Pi/4 }
	} else {
		theta=0.5*math.Atan(c.B/(c.A-c.C))
	}
	if theta<0 { theta+=math.Pi/2 }

	// rotate into axis aligned coordinates
	cos, sin:=math.Cos(theta), math.Sin(theta)
	ar:=c.A*cos*cos + c.B*cos*sin + c.C*sin*sin
	cr:=c.A*sin*sin - c.B*cos*sin + c.C*cos*cos
	dr:=c.D*cos + c.E*sin
	er:=-c.D*sin + c.E*cos

	if ar==0 || cr==0 {
		return Ellipse{}
	}
	xcr, ycr:=-dr/(2*ar), -er/(2*cr)
	g:=ar*xcr*xcr + cr*ycr*ycr - c.F
	if g/ar<=0 || g/cr<=0 {
		return Ellipse{}
	}
	return Ellipse{
		CenterX:   xcr*cos - ycr*sin,
		CenterY:   xcr*sin + ycr*cos,
		SemiA:     math.Sqrt(g/ar),
		SemiB:     math.Sqrt(g/cr),
		Theta:     theta,
		IsEllipse: true,
	}
}

// Conic returns the general form coefficients of the ellipse, normalized
// so that A+C = 2
func (e *Ellipse) Conic() Conic {
	cos, sin:=math.Cos(e.Theta), math.Sin(e.Theta)
	ia, ib:=1/(e.SemiA*e.SemiA), 1/(e.SemiB*e.SemiB)
	a:=ia*cos*cos + ib*sin*sin
	b:=2*(ia-ib)*cos*sin
	cc:=ia*sin*sin + ib*cos*cos
	d:=-2*a*e.CenterX - b*e.CenterY
	ee:=-b*e.CenterX - 2*cc*e.CenterY
	f:=a*e.CenterX*e.CenterX + b*e.CenterX*e.CenterY + cc*e.CenterY*e.CenterY - 1
	scale:=2/(a+cc)
	return Conic{a*scale, b*scale, cc*scale, d*scale, ee*scale, f*scale}
}

// ExtremalPoints returns the four extremal points of the ellipse in its
// original orientation, in the order right, top, left, bottom along the
// rotated axes
func (e *Ellipse) ExtremalPoints() [4]Point {
	cos, sin:=math.Cos(e.Theta), math.Sin(e.Theta)
	offsets:=[4]Point{
		{e.SemiA, 0}, {0, e.SemiB}, {-e.SemiA, 0}, {0, -e.SemiB},
	}
	var points [4]Point
	for i, o:=range offsets {
		points[i]=Point{
			X: e.CenterX + o.X*cos - o.Y*sin,
			Y: e.CenterY + o.X*sin + o.Y*cos,
		}
	}
	return points
}
