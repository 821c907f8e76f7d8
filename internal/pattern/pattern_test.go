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


package pattern

import (
	"math"
	"testing"
)

func TestAnnularMaskArea(t *testing.T) {
	cases:=[]struct{ size, inner, outer int }{
		{64, 5, 10},
		{64, 10, 20},
		{128, 20, 40},
		{256, 3, 60},
	}
	for _, c:=range cases {
		m:=NewAnnularMask(2*c.outer+1, c.inner, c.outer)
		got:=float64(m.CountNonZero())
		// discretization slop of one pixel per boundary circumference
		want:=math.Pi*float64(c.outer*c.outer-c.inner*c.inner)
		slop:=2*math.Pi*float64(c.outer+c.inner)
		if math.Abs(got-want)>slop {
			t.Errorf("annulus [%d,%d]: %d marked pixels, expect %.0f +- %.0f", c.inner, c.outer, int(got), want, slop)
		}
	}
}

func TestAnnularMaskBounds(t *testing.T) {
	m:=NewAnnularMask(21, 5, 10)
	c:=10
	for y:=0; y<21; y++ {
		for x:=0; x<21; x++ {
			dist:=math.Sqrt(float64((y-c)*(y-c)+(x-c)*(x-c)))
			want:=dist>=5 && dist<=10
			if m.Data[y*21+x]!=want {
				t.Fatalf("mask(%d,%d)=%v, dist %.2f", x, y, m.Data[y*21+x], dist)
			}
		}
	}
}

func TestMaskValuesBounds(t *testing.T) {
	img:=NewImage(32, 32)
	for i:=range img.Data { img.Data[i]=float32(i) }
	m:=NewAnnularMask(11, 0, 5)

	// fully inside
	samples, err:=m.Values(img, 10, 10)
	if err!=nil { t.Fatal(err) }
	if len(samples)!=m.CountNonZero() {
		t.Errorf("inside placement: %d samples, expect %d", len(samples), m.CountNonZero())
	}

	// partially outside clips, does not fail
	samples, err=m.Values(img, -5, -5)
	if err!=nil { t.Fatal(err) }
	if len(samples)>=m.CountNonZero() {
		t.Errorf("clipped placement returned %d samples, expect fewer than %d", len(samples), m.CountNonZero())
	}
	for _, s:=range samples {
		if s.X<0 || s.X>=32 || s.Y<0 || s.Y>=32 {
			t.Fatalf("sample (%d,%d) outside image", s.X, s.Y)
		}
		if s.Value!=img.Data[s.Y*32+s.X] {
			t.Fatalf("sample (%d,%d) value %f, expect %f", s.X, s.Y, s.Value, img.Data[s.Y*32+s.X])
		}
	}

	// fully outside errors
	if _, err=m.Values(img, 100, 100); err==nil {
		t.Error("placement fully outside the image should error")
	}
}

func TestArgMaxAndFillCircle(t *testing.T) {
	img:=NewImage(32, 32)
	img.Data[17*32+9]=5
	img.Data[3*32+30]=3

	x, y, v:=img.ArgMax()
	if x!=9 || y!=17 || v!=5 {
		t.Fatalf("argmax (%d,%d)=%f, expect (9,17)=5", x, y, v)
	}

	img.FillCircle(9, 17, 4, 0)
	x, y, v=img.ArgMax()
	if x!=30 || y!=3 || v!=3 {
		t.Fatalf("argmax after blacken (%d,%d)=%f, expect (30,3)=3", x, y, v)
	}
}

func TestFillCircleClipsAtBorder(t *testing.T) {
	img:=NewImage(16, 16)
	img.FillCircle(0, 0, 5, 1)
	if img.Data[0]!=1 {
		t.Error("center pixel not filled")
	}
	for i, v:=range img.Data {
		x, y:=i%16, i/16
		if v==1 && x*x+y*y>25 {
			t.Fatalf("pixel (%d,%d) filled outside radius", x, y)
		}
	}
}

func TestScharrAmplitude(t *testing.T) {
	// vertical step edge produces horizontal gradient response along the edge
	img:=NewImage(16, 16)
	for y:=0; y<16; y++ {
		for x:=8; x<16; x++ {
			img.Data[y*16+x]=1
		}
	}
	grad:=img.ScharrAmplitude()
	if grad.Data[8*16+7]<=0 || grad.Data[8*16+8]<=0 {
		t.Error("no gradient response at the step edge")
	}
	if grad.Data[8*16+3]!=0 {
		t.Error("gradient response in flat region")
	}
	// border stays zero
	for x:=0; x<16; x++ {
		if grad.Data[x]!=0 || grad.Data[15*16+x]!=0 {
			t.Fatal("gradient response on the image border")
		}
	}
}

func TestDownsampleTo(t *testing.T) {
	cases:=[]struct{ w, h, target, wantW int }{
		{1024, 1024, 256, 256},
		{1024, 1024, 250, 256},
		{300, 300, 256, 300},
		{256, 256, 256, 256},
	}
	for _, c:=range cases {
		img:=NewImage(c.w, c.h)
		res:=img.DownsampleTo(c.target)
		if res.Width!=c.wantW {
			t.Errorf("downsample %dx%d to >=%d: got %d, expect %d", c.w, c.h, c.target, res.Width, c.wantW)
		}
	}
}

func TestDownsample2x2Mean(t *testing.T) {
	img:=NewImage(4, 4)
	for i:=range img.Data { img.Data[i]=float32(i) }
	res:=img.Downsample2x2()
	want:=float32(0+1+4+5)/4
	if res.Data[0]!=want {
		t.Errorf("block mean %f, expect %f", res.Data[0], want)
	}
}

func TestBilinear(t *testing.T) {
	img:=NewImage(4, 4)
	img.Data[0], img.Data[1]=0, 2
	img.Data[4], img.Data[5]=4, 6

	if v, ok:=img.Bilinear(0.5, 0.5); !ok || v!=3 {
		t.Errorf("bilinear(0.5,0.5)=%f ok=%v, expect 3", v, ok)
	}
	if v, ok:=img.Bilinear(1, 0); !ok || v!=2 {
		t.Errorf("bilinear(1,0)=%f ok=%v, expect 2", v, ok)
	}
	if _, ok:=img.Bilinear(-0.1, 0); ok {
		t.Error("sample outside the image should fail")
	}
}

func TestHannWindow(t *testing.T) {
	hann:=NewHannWindow(64, 64)
	img:=NewImage(64, 64)
	for i:=range img.Data { img.Data[i]=1 }
	res:=hann.Apply(img)

	if res.Data[0]!=0 || res.Data[63]!=0 || res.Data[63*64]!=0 {
		t.Error("window is not zero at the corners")
	}
	mid:=res.Data[31*64+31]
	if mid<0.9 {
		t.Errorf("window center %f, expect close to 1", mid)
	}
	for i, v:=range res.Data {
		if v<0 || v>1 {
			t.Fatalf("window value %f out of range at %d", v, i)
		}
	}
}

func TestHannWindowDegenerate(t *testing.T) {
	hann:=NewHannWindow(1, 5)
	img:=NewImage(1, 5)
	for i:=range img.Data { img.Data[i]=2 }
	res:=hann.Apply(img)
	for i, v:=range res.Data {
		if math.IsNaN(float64(v)) || v<0 || v>2 {
			t.Fatalf("window value %f out of range at %d", v, i)
		}
	}
	if res.Data[2]<1.8 {
		t.Errorf("single-column window center %f, expect the column weight to be 1", res.Data[2])
	}

	single:=NewImage(1, 1)
	single.Data[0]=3
	one:=NewHannWindow(1, 1).Apply(single)
	if one.Data[0]!=3 {
		t.Errorf("1x1 window value %f, expect 3", one.Data[0])
	}
}

func TestThresholdProportion(t *testing.T) {
	img:=NewImage(10, 10)
	for i:=range img.Data { img.Data[i]=float32(i) }

	m, threshold:=img.ThresholdProportion(0.25, ThreshBinary, 100, false)
	got:=m.CountNonZero()
	if got<20 || got>30 {
		t.Errorf("threshold %f marks %d pixels, expect about 25", threshold, got)
	}

	inv, _:=img.ThresholdProportion(0.25, ThreshBinaryInv, 100, false)
	if m.CountNonZero()+inv.CountNonZero()!=100 {
		t.Error("binary and inverse masks should partition the image")
	}
}

func TestValidateStack(t *testing.T) {
	if err:=ValidateStack(nil); err==nil {
		t.Error("empty stack should error")
	}
	if err:=ValidateStack([]*Image{NewImage(8, 8), nil}); err==nil {
		t.Error("nil image should error")
	}
	if err:=ValidateStack([]*Image{NewImage(8, 8), NewImage(8, 9)}); err==nil {
		t.Error("dimension mismatch should error")
	}
	if err:=ValidateStack([]*Image{NewImage(8, 8), NewImage(8, 8)}); err!=nil {
		t.Errorf("valid stack rejected: %s", err)
	}
}
