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


package tiffio

import (
	"io"
	"math"
	"path/filepath"
	"testing"

	"diffatlas/internal/pattern"
)

func TestWriteReadRoundTrip(t *testing.T) {
	w, h:=32, 16
	img:=pattern.NewImage(w, h)
	for i:=range img.Data {
		img.Data[i]=float32(i%1024)
	}

	fileName:=filepath.Join(t.TempDir(), "roundtrip.tif")
	if err:=WriteTIFF16ToFile(img, fileName, 0, 1023, 1); err!=nil {
		t.Fatal(err)
	}
	back, err:=ReadFile(fileName, 7)
	if err!=nil { t.Fatal(err) }
	if back.Width!=w || back.Height!=h {
		t.Fatalf("read %dx%d, expect %dx%d", back.Width, back.Height, w, h)
	}
	if back.ID!=7 || back.FileName!=fileName {
		t.Errorf("ID %d file %q, expect 7 and %q", back.ID, back.FileName, fileName)
	}
	// 10 bits of input over 16 bits of range: quantization stays below one input unit
	for i:=range img.Data {
		got:=float64(back.Data[i])/65535*1023
		if math.Abs(got-float64(img.Data[i]))>1 {
			t.Fatalf("pixel %d: %f after round trip, expect %f", i, got, img.Data[i])
		}
	}
}

func TestWriteTIFF16Clamps(t *testing.T) {
	img:=pattern.NewImage(4, 1)
	img.Data[0]=-10
	img.Data[1]=float32(math.NaN())
	img.Data[2]=500
	img.Data[3]=99999

	fileName:=filepath.Join(t.TempDir(), "clamp.tif")
	if err:=WriteTIFF16ToFile(img, fileName, 0, 1000, 1); err!=nil {
		t.Fatal(err)
	}
	back, err:=ReadFile(fileName, 0)
	if err!=nil { t.Fatal(err) }
	if back.Data[0]!=0 || back.Data[1]!=0 {
		t.Errorf("negative and NaN pixels read back as %f and %f, expect black", back.Data[0], back.Data[1])
	}
	if back.Data[3]!=65535 {
		t.Errorf("above-range pixel read back as %f, expect full scale", back.Data[3])
	}
	if math.Abs(float64(back.Data[2])-0.5*65535)>65 {
		t.Errorf("mid-range pixel read back as %f, expect ~%f", back.Data[2], 0.5*65535)
	}
}

func TestReadStack(t *testing.T) {
	dir:=t.TempDir()
	var names []string
	for i:=0; i<3; i++ {
		img:=pattern.NewImage(8, 8)
		img.Data[i]=1000
		name:=filepath.Join(dir, "frame"+string(rune('a'+i))+".tif")
		if err:=WriteTIFF16ToFile(img, name, 0, 1000, 1); err!=nil {
			t.Fatal(err)
		}
		names=append(names, name)
	}
	images, err:=ReadStack(names, io.Discard)
	if err!=nil { t.Fatal(err) }
	if len(images)!=3 {
		t.Fatalf("%d images, expect 3", len(images))
	}
	for i, img:=range images {
		if img.ID!=i {
			t.Errorf("image %d has ID %d", i, img.ID)
		}
		if img.Data[i]!=65535 {
			t.Errorf("image %d marker pixel %f, expect full scale", i, img.Data[i])
		}
	}

	if _, err:=ReadStack(nil, io.Discard); err==nil {
		t.Error("empty file list should error")
	}
	if _, err:=ReadStack([]string{filepath.Join(dir, "missing.tif")}, io.Discard); err==nil {
		t.Error("missing file should error")
	}
}

func TestRange(t *testing.T) {
	img:=pattern.NewImage(4, 1)
	img.Data[0], img.Data[1], img.Data[2], img.Data[3]=3, -2, 7, 0
	min, max:=Range(img)
	if min!=-2 || max!=7 {
		t.Errorf("range [%f,%f], expect [-2,7]", min, max)
	}

	flat:=pattern.NewImage(2, 2)
	min, max=Range(flat)
	if max<=min {
		t.Errorf("flat image range [%f,%f], expect spread endpoints", min, max)
	}
}
