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


package fourier

import (
	"math/cmplx"
)

// Finds the translation that best maps a onto b from their spectra, via the
// peak of the normalized cross-power spectrum. Returns integer (dx,dy) such
// that b(x,y) ~ a(x-dx, y-dy), and the peak correlation value, 1.0 for a
// perfect cyclic shift. Zero-amplitude frequency products contribute nothing
func (f *FFT2) MaxPhaseCorr(a, b []complex128) (dx, dy int, score float64) {
	cross:=make([]complex128, len(a))
	for i:=range a {
		v:=b[i]*cmplx.Conj(a[i])
		amp:=cmplx.Abs(v)
		if amp>0 {
			cross[i]=v/complex(amp, 0)
		}
	}
	f.transform(cross, true)

	norm:=1.0/float64(f.Width*f.Height)
	maxIndex, maxValue:=0, -1.0
	for i, v:=range cross {
		re:=real(v)*norm
		if re>maxValue {
			maxIndex, maxValue=i, re
		}
	}
	dx, dy=maxIndex%f.Width, maxIndex/f.Width
	if dx>f.Width/2  { dx-=f.Width }
	if dy>f.Height/2 { dy-=f.Height }
	return dx, dy, maxValue
}
