/*
Copyright © 2023 the dgmvelmod authors.
This file is part of dgmvelmod.

dgmvelmod is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

dgmvelmod is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with dgmvelmod.  If not, see <http://www.gnu.org/licenses/>.
*/

package dgmvelmod

import (
	"math"
	"sort"

	"github.com/ctessum/sparse"
)

// gridLoc is a horizontal sample location resolved onto the model axes:
// the lower-left node indices and the fractional distances toward the
// next node along each axis.
type gridLoc struct {
	ix, iy int
	fx, fy float64
	ok     bool // false when the location is outside the grid extent
}

// findLoc locates (x, y) on the given ascending axes. Locations outside
// the axis ranges are flagged rather than extrapolated.
func findLoc(xAxis, yAxis []float64, x, y float64) gridLoc {
	ix, fx, okx := axisInterval(xAxis, x)
	iy, fy, oky := axisInterval(yAxis, y)
	return gridLoc{ix: ix, iy: iy, fx: fx, fy: fy, ok: okx && oky}
}

// axisInterval finds the interval of the ascending coordinate axis that
// contains v, returning the index of the lower node and the fractional
// position of v within the interval. The axis spacing may be irregular.
func axisInterval(axis []float64, v float64) (i int, frac float64, ok bool) {
	n := len(axis)
	if n < 2 || math.IsNaN(v) || v < axis[0] || v > axis[n-1] {
		return 0, 0, false
	}
	// sort.SearchFloat64s returns the insertion index, so the lower node
	// is one to its left except exactly on a node.
	j := sort.SearchFloat64s(axis, v)
	if axis[j] > v {
		j--
	}
	if j == n-1 { // exactly on the last node
		j--
	}
	frac = (v - axis[j]) / (axis[j+1] - axis[j])
	return j, frac, true
}

// interpXY bilinearly interpolates the trailing [y, x] plane of data at
// loc, with the leading array dimensions fixed to idx. A NaN at any of
// the four surrounding nodes or a location outside the grid yields NaN,
// matching linear interpolation over incomplete grids.
func interpXY(data *sparse.DenseArray, idx []int, loc gridLoc) float64 {
	if !loc.ok {
		return math.NaN()
	}
	full := make([]int, len(idx)+2)
	copy(full, idx)
	get := func(iy, ix int) float64 {
		full[len(idx)] = iy
		full[len(idx)+1] = ix
		return data.Get(full...)
	}
	v00 := get(loc.iy, loc.ix)
	v01 := get(loc.iy, loc.ix+1)
	v10 := get(loc.iy+1, loc.ix)
	v11 := get(loc.iy+1, loc.ix+1)
	return v00*(1-loc.fx)*(1-loc.fy) +
		v01*loc.fx*(1-loc.fy) +
		v10*(1-loc.fx)*loc.fy +
		v11*loc.fx*loc.fy
}
