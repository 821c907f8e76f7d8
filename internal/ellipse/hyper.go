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
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// A weighted sample point for conic fitting
type WeightedPoint struct {
	X, Y, W float64
}

// HyperFit fits a conic to weighted points by iterative hyper-renormalization.
// The method solves a generalized eigenvalue problem whose noise-bias
// correction term removes the second-order statistical bias of algebraic
// least squares, which keeps it stable for the short, noisy arcs that spot
// edges produce. Iteration reweights each point by the current parameter's
// covariance and stops once the parameter vector moves less than thresh,
// or after maxIter sweeps with converged=false
func HyperFit(points []WeightedPoint, maxIter int, thresh float64) (conic Conic, converged bool, err error) {
	if len(points)<6 {
		return Conic{}, false, fmt.Errorf("conic fit: need at least 6 points, have %d", len(points))
	}
	f0:=1.0
	for _, p:=range points {
		if a:=math.Abs(p.X); a>f0 { f0=a }
		if a:=math.Abs(p.Y); a>f0 { f0=a }
	}

	xis:=make([]*mat.VecDense, len(points))
	covs:=make([]*mat.SymDense, len(points))
	for i, p:=range points {
		xis[i]=carrier(p.X, p.Y, f0)
		covs[i]=carrierCov(p.X, p.Y, f0)
	}

	theta:=mat.NewVecDense(6, nil)
	weights:=make([]float64, len(points))
	for i, p:=range points {
		weights[i]=p.W
	}

	for iter:=0; iter<maxIter; iter++ {
		m, n:=hyperMatrices(xis, covs, weights)
		next, solveErr:=largestGeneralizedEigenvector(m, n)
		if solveErr!=nil {
			return Conic{}, false, fmt.Errorf("conic fit: %w", solveErr)
		}
		if mat.Dot(next, theta)<0 {
			next.ScaleVec(-1, next)
		}
		var diff mat.VecDense
		diff.SubVec(next, theta)
		theta=next
		if iter>0 && mat.Norm(&diff, 2)<thresh {
			return conicFromTheta(theta, f0), true, nil
		}
		for i, p:=range points {
			var vt mat.VecDense
			vt.MulVec(covs[i], theta)
			denom:=mat.Dot(theta, &vt)
			if denom<=0 { denom=1e-12 }
			weights[i]=p.W/denom
		}
	}
	return conicFromTheta(theta, f0), false, nil
}

// The carrier vector xi = (x^2, 2xy, y^2, 2 f0 x, 2 f0 y, f0^2)
func carrier(x, y, f0 float64) *mat.VecDense {
	return mat.NewVecDense(6, []float64{x*x, 2*x*y, y*y, 2*f0*x, 2*f0*y, f0*f0})
}

// First-order noise covariance of the carrier, up to the common noise
// variance factor which cancels in the eigenproblem
func carrierCov(x, y, f0 float64) *mat.SymDense {
	c:=mat.NewSymDense(6, nil)
	c.SetSym(0, 0, 4*x*x)
	c.SetSym(0, 1, 4*x*y)
	c.SetSym(0, 3, 4*f0*x)
	c.SetSym(1, 1, 4*(x*x+y*y))
	c.SetSym(1, 2, 4*x*y)
	c.SetSym(1, 3, 4*f0*y)
	c.SetSym(1, 4, 4*f0*x)
	c.SetSym(2, 2, 4*y*y)
	c.SetSym(2, 4, 4*f0*y)
	c.SetSym(3, 3, 4*f0*f0)
	c.SetSym(4, 4, 4*f0*f0)
	return c
}

// Builds the moment matrix M and the hyper-renormalization correction
// matrix N from the weighted carriers
func hyperMatrices(xis []*mat.VecDense, covs []*mat.SymDense, weights []float64) (m, n *mat.Dense) {
	num:=float64(len(xis))
	m=mat.NewDense(6, 6, nil)
	for i, xi:=range xis {
		var outer mat.Dense
		outer.Outer(weights[i]/num, xi, xi)
		m.Add(m, &outer)
	}

	// rank-5 pseudoinverse of M for the second-order term
	mPinv:=truncatedInverse(m, 5)

	// e accounts for the mean of the carrier noise, nonzero in the
	// x^2 and y^2 components
	e:=mat.NewVecDense(6, []float64{1, 0, 1, 0, 0, 0})

	n=mat.NewDense(6, 6, nil)
	var term mat.Dense
	for i, xi:=range xis {
		w:=weights[i]/num
		term.Scale(w, covs[i])
		n.Add(n, &term)

		var outer mat.Dense
		outer.Outer(w, xi, e)
		n.Add(n, symmetrize(&outer))
		n.Add(n, symmetrize(&outer))

		// second-order correction
		w2:=weights[i]*weights[i]/(num*num)
		var mx mat.VecDense
		mx.MulVec(mPinv, xi)
		xiMxi:=mat.Dot(xi, &mx)
		term.Scale(w2*xiMxi, covs[i])
		n.Sub(n, &term)

		var vmx mat.VecDense
		vmx.MulVec(covs[i], &mx)
		var corr mat.Dense
		corr.Outer(w2, &vmx, xi)
		sym:=symmetrize(&corr)
		n.Sub(n, sym)
		n.Sub(n, sym)
	}
	return m, n
}

// Symmetrization operator S[A] = (A + A^T)/2
func symmetrize(a *mat.Dense) *mat.Dense {
	var at, s mat.Dense
	at.CloneFrom(a.T())
	s.Add(a, &at)
	s.Scale(0.5, &s)
	return &s
}

// Inverts a symmetric matrix through its eigendecomposition, keeping only
// the rank largest-magnitude eigenvalues
func truncatedInverse(m *mat.Dense, rank int) *mat.Dense {
	r, _:=m.Dims()
	sym:=mat.NewSymDense(r, nil)
	for i:=0; i<r; i++ {
		for j:=i; j<r; j++ {
			sym.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return mat.NewDense(r, r, nil)
	}
	values:=eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// drop the r-rank smallest magnitude eigenvalues
	type iv struct {
		idx int
		mag float64
	}
	order:=make([]iv, r)
	for i, v:=range values {
		order[i]=iv{i, math.Abs(v)}
	}
	for i:=0; i<r; i++ {
		for j:=i+1; j<r; j++ {
			if order[j].mag>order[i].mag {
				order[i], order[j]=order[j], order[i]
			}
		}
	}
	inv:=mat.NewDense(r, r, nil)
	for k:=0; k<rank && k<r; k++ {
		i:=order[k].idx
		if values[i]==0 { continue }
		v:=vectors.ColView(i)
		var outer mat.Dense
		outer.Outer(1/values[i], v, v)
		inv.Add(inv, &outer)
	}
	return inv
}

// Solves N theta = mu M theta for the eigenvector with the largest
// eigenvalue, via the unsymmetric eigendecomposition of M^-1 N
func largestGeneralizedEigenvector(m, n *mat.Dense) (*mat.VecDense, error) {
	var minv mat.Dense
	if err:=minv.Inverse(m); err!=nil {
		return nil, fmt.Errorf("moment matrix is singular: %w", err)
	}
	var prod mat.Dense
	prod.Mul(&minv, n)

	var eig mat.Eigen
	if !eig.Factorize(&prod, mat.EigenRight) {
		return nil, fmt.Errorf("eigendecomposition failed")
	}
	values:=eig.Values(nil)
	var vectors mat.CDense
	eig.VectorsTo(&vectors)

	best, bestVal:=0, math.Inf(-1)
	for i, v:=range values {
		if re:=real(v); re>bestVal {
			best, bestVal=i, re
		}
	}
	theta:=mat.NewVecDense(6, nil)
	norm:=0.0
	for i:=0; i<6; i++ {
		re:=real(vectors.At(i, best))
		theta.SetVec(i, re)
		norm+=re*re
	}
	if norm==0 {
		return nil, fmt.Errorf("degenerate eigenvector")
	}
	theta.ScaleVec(1/math.Sqrt(norm), theta)
	return theta, nil
}

// Maps the unit parameter vector back to general conic coefficients,
// oriented so that A+C > 0 and the polynomial is negative inside an
// ellipse
func conicFromTheta(theta *mat.VecDense, f0 float64) Conic {
	c:=Conic{
		A: theta.AtVec(0),
		B: 2*theta.AtVec(1),
		C: theta.AtVec(2),
		D: 2*f0*theta.AtVec(3),
		E: 2*f0*theta.AtVec(4),
		F: f0*f0*theta.AtVec(5),
	}
	if c.A+c.C<0 {
		c.A, c.B, c.C, c.D, c.E, c.F=-c.A, -c.B, -c.C, -c.D, -c.E, -c.F
	}
	return c
}
