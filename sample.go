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
	"encoding/json"
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// The velocity variants used for sampling. Only simple kriging is
// available for the combined model.
const (
	samplingKriging = "sk"
	samplingMean    = "mean"
	samplingSD      = "sd"
)

// A Sampler answers point, profile, section, and volume queries against
// the combination of a stratigraphic model and a velocity model. It is
// restricted to the stratigraphic units the two models have in common,
// ordered top to bottom. The last common unit acts as a catch-all
// basement: every depth below its overlying base resolves to it.
//
// A Sampler is safe for concurrent use.
type Sampler struct {
	strat *StratModel
	vel   *VelocityModel

	units    []string
	ordering []int
	su, vu   []int // per common unit: index into the unit dimension of each model

	ikrig, imean, isd int
}

// NewSampler combines a stratigraphic and a velocity model into a
// sampler. The two models must be in the same coordinate reference
// system but may be gridded differently.
func NewSampler(strat *StratModel, vel *VelocityModel) (*Sampler, error) {
	if err := strat.Check(); err != nil {
		return nil, err
	}
	if err := vel.Check(); err != nil {
		return nil, err
	}
	if strat.CRS != vel.CRS {
		return nil, fmt.Errorf("dgmvelmod: coordinate reference systems of %s (%s) and %s (%s) do not match",
			strat.Model, strat.CRS, vel.Model, vel.CRS)
	}
	s := &Sampler{strat: strat, vel: vel}
	var err error
	if s.ikrig, err = vel.krigingIndex(samplingKriging); err != nil {
		return nil, err
	}
	if s.imean, err = vel.statisticIndex(samplingMean); err != nil {
		return nil, err
	}
	if s.isd, err = vel.statisticIndex(samplingSD); err != nil {
		return nil, err
	}
	// Units common to both models, in canonical top-to-bottom order.
	// The model unit lists are already sorted by ordering.
	for i, u := range strat.Units {
		j, err := vel.UnitIndex(u)
		if err != nil {
			continue
		}
		s.units = append(s.units, u)
		s.ordering = append(s.ordering, strat.Ordering[i])
		s.su = append(s.su, i)
		s.vu = append(s.vu, j)
	}
	if len(s.units) == 0 {
		return nil, fmt.Errorf("dgmvelmod: models %s and %s have no stratigraphic units in common",
			strat.Model, vel.Model)
	}
	return s, nil
}

// Units returns the stratigraphic units covered by the sampler, top to
// bottom.
func (s *Sampler) Units() []string { return s.units }

// Bounds returns the horizontal extent of the stratigraphic grid.
func (s *Sampler) Bounds() *geom.Bounds { return s.strat.Bounds() }

// SR returns the spatial reference of the model grids.
func (s *Sampler) SR() (*proj.SR, error) { return s.strat.SR() }

// InputTransform returns a transformer that converts query coordinates
// given in the spatial reference sr into the model grid coordinates.
func (s *Sampler) InputTransform(sr *proj.SR) (proj.Transformer, error) {
	modelSR, err := s.SR()
	if err != nil {
		return nil, err
	}
	ct, err := sr.NewTransform(modelSR)
	if err != nil {
		return nil, fmt.Errorf("dgmvelmod: creating query coordinate transform: %v", err)
	}
	return ct, nil
}

// A Column holds the interpolated per-unit surfaces of the combined
// model at one horizontal location. Slices are indexed by unit, top to
// bottom; values are NaN where the location falls outside a grid or a
// surface is unmapped.
type Column struct {
	X, Y float64

	// Units lists the stratigraphic units, top to bottom.
	Units []string

	// Base is the true vertical depth of each unit base in m relative
	// to NAP, negative down.
	Base []float64

	// V0 and V0SD are the mean and standard deviation of the surface
	// intercept velocity in m/s (simple kriging, holes filled).
	V0, V0SD []float64

	// K is the vertical velocity gradient in 1/s.
	K []float64
}

// MarshalJSON implements json.Marshaler. NaN values, which mark unmapped
// units and locations outside the grids, encode as null because JSON has
// no NaN.
func (c *Column) MarshalJSON() ([]byte, error) {
	nullNaN := func(vals []float64) []*float64 {
		out := make([]*float64, len(vals))
		for i := range vals {
			if !math.IsNaN(vals[i]) {
				out[i] = &vals[i]
			}
		}
		return out
	}
	return json.Marshal(struct {
		X, Y  float64
		Units []string
		Base  []*float64
		V0    []*float64
		V0SD  []*float64
		K     []*float64
	}{c.X, c.Y, c.Units, nullNaN(c.Base), nullNaN(c.V0), nullNaN(c.V0SD), nullNaN(c.K)})
}

// Column interpolates every per-unit surface of the combined model at
// point p (in the model coordinate reference system). Locations outside
// the grids yield NaN values rather than an error.
func (s *Sampler) Column(p geom.Point) (*Column, error) {
	n := len(s.units)
	c := &Column{
		X:     p.X,
		Y:     p.Y,
		Units: s.units,
		Base:  make([]float64, n),
		V0:    make([]float64, n),
		V0SD:  make([]float64, n),
		K:     make([]float64, n),
	}
	sLoc := findLoc(s.strat.X, s.strat.Y, p.X, p.Y)
	vLoc := findLoc(s.vel.X, s.vel.Y, p.X, p.Y)
	for i := range s.units {
		c.Base[i] = interpXY(s.strat.TVD, []int{s.su[i]}, sLoc)
		c.V0[i] = interpXY(s.vel.V0Filled, []int{s.vu[i], s.ikrig, s.imean}, vLoc)
		c.V0SD[i] = interpXY(s.vel.V0Filled, []int{s.vu[i], s.ikrig, s.isd}, vLoc)
		c.K[i] = s.vel.K[s.vu[i]]
	}
	return c, nil
}

// UnitAt returns the index of the unit containing depth z (m relative
// to NAP, negative down): the first unit from the top whose base lies
// strictly below z. Unmapped bases are skipped; depths below every
// mapped base belong to the deepest unit. The second return is false
// when no base in the column is mapped at all.
func (c *Column) UnitAt(z float64) (int, bool) {
	last := -1
	for i, base := range c.Base {
		if math.IsNaN(base) {
			continue
		}
		if base < z {
			return i, true
		}
		last = i
	}
	if last < 0 {
		return -1, false
	}
	// Below the deepest mapped base: the basement catch-all.
	return len(c.Base) - 1, true
}

// VelocityAt returns the instantaneous P-wave velocity at depth z,
// following Vinst = V0 - k*z within the containing unit (z is negative
// down, so velocity increases with depth for positive k). It returns
// NaN when no unit resolves or the unit's velocity is unmapped.
func (c *Column) VelocityAt(z float64) float64 {
	i, ok := c.UnitAt(z)
	if !ok {
		return math.NaN()
	}
	return c.V0[i] - c.K[i]*z
}

// A Profile is a 1-D vertical sampling of the combined model.
type Profile struct {
	X, Y float64

	// Z holds the sampled depths in m relative to NAP, negative down.
	Z []float64

	// Vinst is the instantaneous P-wave velocity at each depth, m/s.
	// SD is its standard deviation, inherited from the intercept
	// velocity of the containing unit.
	Vinst, SD []float64

	// Unit is the index into Column.Units of the unit containing each
	// depth, or -1 where no unit resolves.
	Unit []int

	// Column holds the interpolated per-unit surfaces the profile was
	// built from.
	Column *Column
}

// Profile samples a vertical velocity profile at point p for the given
// depths.
func (s *Sampler) Profile(p geom.Point, z []float64) (*Profile, error) {
	if len(z) == 0 {
		return nil, fmt.Errorf("dgmvelmod: profile at (%g, %g): no depths requested", p.X, p.Y)
	}
	c, err := s.Column(p)
	if err != nil {
		return nil, err
	}
	pr := &Profile{
		X:      p.X,
		Y:      p.Y,
		Z:      z,
		Vinst:  make([]float64, len(z)),
		SD:     make([]float64, len(z)),
		Unit:   make([]int, len(z)),
		Column: c,
	}
	for k, zz := range z {
		i, ok := c.UnitAt(zz)
		if !ok {
			pr.Unit[k] = -1
			pr.Vinst[k] = math.NaN()
			pr.SD[k] = math.NaN()
			continue
		}
		pr.Unit[k] = i
		pr.Vinst[k] = c.V0[i] - c.K[i]*zz
		pr.SD[k] = c.V0SD[i]
	}
	return pr, nil
}

// A Section is a 2-D vertical slice of the combined model along a
// straight line.
type Section struct {
	Start, End geom.Point

	// Distance is the along-line distance of each trace from Start, m.
	Distance []float64

	// X and Y are the horizontal coordinates of each trace.
	X, Y []float64

	// Z holds the sampled depths, m relative to NAP, negative down.
	Z []float64

	// Units lists the stratigraphic units, top to bottom.
	Units []string

	// Vinst is the instantaneous P-wave velocity [depth, trace], m/s.
	Vinst *sparse.DenseArray

	// Unit is the index into Units of the unit containing each sample
	// [depth, trace]; NaN where no unit resolves.
	Unit *sparse.DenseArray
}

// Section samples a vertical section along the line from start to end
// with n equally spaced traces at the given depths.
func (s *Sampler) Section(start, end geom.Point, n int, z []float64) (*Section, error) {
	if n < 2 {
		return nil, fmt.Errorf("dgmvelmod: section needs at least 2 traces; got %d", n)
	}
	if len(z) == 0 {
		return nil, fmt.Errorf("dgmvelmod: section: no depths requested")
	}
	sec := &Section{
		Start:    start,
		End:      end,
		Distance: make([]float64, n),
		X:        make([]float64, n),
		Y:        make([]float64, n),
		Z:        z,
		Units:    s.units,
		Vinst:    sparse.ZerosDense(len(z), n),
		Unit:     sparse.ZerosDense(len(z), n),
	}
	length := math.Hypot(end.X-start.X, end.Y-start.Y)
	for j := 0; j < n; j++ {
		f := float64(j) / float64(n-1)
		sec.Distance[j] = f * length
		sec.X[j] = start.X + f*(end.X-start.X)
		sec.Y[j] = start.Y + f*(end.Y-start.Y)
		c, err := s.Column(geom.Point{X: sec.X[j], Y: sec.Y[j]})
		if err != nil {
			return nil, err
		}
		for k, zz := range z {
			i, ok := c.UnitAt(zz)
			if !ok {
				sec.Vinst.Set(math.NaN(), k, j)
				sec.Unit.Set(math.NaN(), k, j)
				continue
			}
			sec.Vinst.Set(c.V0[i]-c.K[i]*zz, k, j)
			sec.Unit.Set(float64(i), k, j)
		}
	}
	return sec, nil
}

// A Cube is a 3-D block sampling of the combined model.
type Cube struct {
	// X and Y are the horizontal sample coordinates in the model
	// coordinate reference system; Z the sampled depths, m relative to
	// NAP, negative down.
	X, Y, Z []float64

	// CRS is the PROJ4 definition of the model coordinate reference
	// system.
	CRS string

	// Units lists the stratigraphic units, top to bottom.
	Units []string

	// Vinst is the instantaneous P-wave velocity [z, y, x], m/s.
	Vinst *sparse.DenseArray

	// Unit is the index into Units of the unit containing each sample
	// [z, y, x]; NaN where no unit resolves.
	Unit *sparse.DenseArray

	// Base, V0, and V0SD are the interpolated per-unit surfaces
	// [unit, y, x]: base depth (m), mean and standard deviation of the
	// surface intercept velocity (m/s).
	Base, V0, V0SD *sparse.DenseArray

	// K is the vertical velocity gradient per unit, 1/s.
	K []float64
}

// Cube samples a 3-D block on the outer product of the x, y, and z
// axes, all in the model coordinate reference system.
func (s *Sampler) Cube(x, y, z []float64) (*Cube, error) {
	return s.cube(x, y, z, nil)
}

// CubeTransformed is like Cube, except that the x and y axes are given
// in a foreign coordinate reference system and every grid node is
// reprojected into the model system through ct before sampling. The
// resulting sample locations are curvilinear in model coordinates; the
// cube axes keep the foreign coordinates.
func (s *Sampler) CubeTransformed(x, y, z []float64, ct proj.Transformer) (*Cube, error) {
	if ct == nil {
		return nil, fmt.Errorf("dgmvelmod: cube: nil coordinate transform")
	}
	return s.cube(x, y, z, ct)
}

func (s *Sampler) cube(x, y, z []float64, ct proj.Transformer) (*Cube, error) {
	if len(x) == 0 || len(y) == 0 || len(z) == 0 {
		return nil, fmt.Errorf("dgmvelmod: cube: empty sample axes")
	}
	nu := len(s.units)
	c := &Cube{
		X:     x,
		Y:     y,
		Z:     z,
		CRS:   s.strat.CRS,
		Units: s.units,
		Vinst: sparse.ZerosDense(len(z), len(y), len(x)),
		Unit:  sparse.ZerosDense(len(z), len(y), len(x)),
		Base:  sparse.ZerosDense(nu, len(y), len(x)),
		V0:    sparse.ZerosDense(nu, len(y), len(x)),
		V0SD:  sparse.ZerosDense(nu, len(y), len(x)),
		K:     make([]float64, nu),
	}
	for i := range s.units {
		c.K[i] = s.vel.K[s.vu[i]]
	}
	for j, yy := range y {
		for i, xx := range x {
			xm, ym := xx, yy
			if ct != nil {
				var err error
				xm, ym, err = ct(xx, yy)
				if err != nil {
					return nil, fmt.Errorf("dgmvelmod: cube: transforming (%g, %g): %v", xx, yy, err)
				}
			}
			col, err := s.Column(geom.Point{X: xm, Y: ym})
			if err != nil {
				return nil, err
			}
			for u := 0; u < nu; u++ {
				c.Base.Set(col.Base[u], u, j, i)
				c.V0.Set(col.V0[u], u, j, i)
				c.V0SD.Set(col.V0SD[u], u, j, i)
			}
			for k, zz := range z {
				u, ok := col.UnitAt(zz)
				if !ok {
					c.Vinst.Set(math.NaN(), k, j, i)
					c.Unit.Set(math.NaN(), k, j, i)
					continue
				}
				c.Vinst.Set(col.V0[u]-col.K[u]*zz, k, j, i)
				c.Unit.Set(float64(u), k, j, i)
			}
		}
	}
	return c, nil
}
