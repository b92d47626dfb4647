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
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// Test models on a 3x3 grid with three constant-valued units.
var (
	testUnits    = []string{"N", "S", "ZE"}
	testOrdering = []int{0, 10, 19}
	testBases    = []float64{-100, -300, -500}
	testV0       = []float64{1800, 2500, 4400}
	testV0SD     = []float64{50, 80, 0}
	testK        = []float64{0.2, 0.5, 0}
)

func testStratModel() *StratModel {
	x := []float64{0, 100, 200}
	y := []float64{0, 100, 200}
	tvd := sparse.ZerosDense(len(testUnits), len(y), len(x))
	for u := range testUnits {
		for j := range y {
			for i := range x {
				tvd.Set(testBases[u], u, j, i)
			}
		}
	}
	return &StratModel{
		Header: Header{
			Model:    "DGM5",
			CRS:      CRSUTM31,
			X:        x,
			Y:        y,
			Units:    append([]string{}, testUnits...),
			Ordering: append([]int{}, testOrdering...),
		},
		TVD: tvd,
	}
}

func velocityModelFor(units []string, ordering []int, v0, sd, k []float64) *VelocityModel {
	x := []float64{0, 100, 200}
	y := []float64{0, 100, 200}
	ktypes := []string{"sk"}
	stats := []string{"mean", "sd"}
	data := sparse.ZerosDense(len(units), len(ktypes), len(stats), len(y), len(x))
	for u := range units {
		for j := range y {
			for i := range x {
				data.Set(v0[u], u, 0, 0, j, i)
				data.Set(sd[u], u, 0, 1, j, i)
			}
		}
	}
	return &VelocityModel{
		Header: Header{
			Model:    "VELMOD3.1",
			CRS:      CRSUTM31,
			X:        x,
			Y:        y,
			Units:    append([]string{}, units...),
			Ordering: append([]int{}, ordering...),
		},
		KrigingTypes: ktypes,
		Statistics:   stats,
		V0:           data,
		V0Filled:     data.Copy(),
		Vint:         sparse.ZerosDense(data.Shape...),
		K:            k,
	}
}

func testVelocityModel() *VelocityModel {
	return velocityModelFor(testUnits, testOrdering, testV0, testV0SD, testK)
}

func testSampler(t *testing.T) *Sampler {
	t.Helper()
	s, err := NewSampler(testStratModel(), testVelocityModel())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewSamplerCommonUnits(t *testing.T) {
	// A velocity model covering fewer units restricts the sampler to
	// the intersection, in top-to-bottom order.
	vel := velocityModelFor([]string{"N", "ZE"}, []int{0, 19},
		[]float64{1800, 4400}, []float64{50, 0}, []float64{0.2, 0})
	s, err := NewSampler(testStratModel(), vel)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"N", "ZE"}
	units := s.Units()
	if len(units) != len(want) {
		t.Fatalf("units = %v, want %v", units, want)
	}
	for i, u := range want {
		if units[i] != u {
			t.Fatalf("units = %v, want %v", units, want)
		}
	}
}

func TestNewSamplerErrors(t *testing.T) {
	vel := testVelocityModel()
	vel.CRS = "+proj=longlat +datum=WGS84 +no_defs"
	if _, err := NewSampler(testStratModel(), vel); err == nil {
		t.Error("mismatched CRS: want error")
	}

	vel = velocityModelFor([]string{"CK"}, []int{5},
		[]float64{2000}, []float64{10}, []float64{0.3})
	if _, err := NewSampler(testStratModel(), vel); err == nil {
		t.Error("no common units: want error")
	}

	vel = testVelocityModel()
	vel.KrigingTypes = []string{"ok"}
	if _, err := NewSampler(testStratModel(), vel); err == nil {
		t.Error("missing simple kriging variant: want error")
	}

	strat := testStratModel()
	strat.Units[0], strat.Units[1] = strat.Units[1], strat.Units[0]
	strat.Ordering[0], strat.Ordering[1] = strat.Ordering[1], strat.Ordering[0]
	if _, err := NewSampler(strat, testVelocityModel()); err == nil {
		t.Error("units out of stratigraphic order: want error")
	}
}

func TestColumn(t *testing.T) {
	s := testSampler(t)
	c, err := s.Column(geom.Point{X: 100, Y: 100})
	if err != nil {
		t.Fatal(err)
	}
	for i := range testUnits {
		if c.Base[i] != testBases[i] {
			t.Errorf("unit %s: base = %g, want %g", testUnits[i], c.Base[i], testBases[i])
		}
		if c.V0[i] != testV0[i] {
			t.Errorf("unit %s: V0 = %g, want %g", testUnits[i], c.V0[i], testV0[i])
		}
		if c.V0SD[i] != testV0SD[i] {
			t.Errorf("unit %s: V0SD = %g, want %g", testUnits[i], c.V0SD[i], testV0SD[i])
		}
		if c.K[i] != testK[i] {
			t.Errorf("unit %s: k = %g, want %g", testUnits[i], c.K[i], testK[i])
		}
	}
}

func TestColumnOutsideGrid(t *testing.T) {
	s := testSampler(t)
	c, err := s.Column(geom.Point{X: 300, Y: 100})
	if err != nil {
		t.Fatal(err)
	}
	for i := range c.Base {
		if !math.IsNaN(c.Base[i]) || !math.IsNaN(c.V0[i]) {
			t.Errorf("unit %s: base = %g, V0 = %g, want NaN outside the grid",
				c.Units[i], c.Base[i], c.V0[i])
		}
	}
	if v := c.VelocityAt(-200); !math.IsNaN(v) {
		t.Errorf("velocity outside the grid = %g, want NaN", v)
	}
}

func TestColumnMissingData(t *testing.T) {
	// A hole in a unit surface propagates NaN through interpolation.
	strat := testStratModel()
	strat.TVD.Set(math.NaN(), 0, 1, 1)
	s, err := NewSampler(strat, testVelocityModel())
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.Column(geom.Point{X: 50, Y: 50})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(c.Base[0]) {
		t.Errorf("base of holed unit = %g, want NaN", c.Base[0])
	}
	if math.IsNaN(c.Base[1]) || math.IsNaN(c.Base[2]) {
		t.Errorf("bases of intact units = %g, %g, want finite", c.Base[1], c.Base[2])
	}
	// With the top base unmapped, shallow depths fall through to the
	// next mapped unit.
	if i, ok := c.UnitAt(-50); !ok || i != 1 {
		t.Errorf("unit at -50 m = %d (%v), want 1", i, ok)
	}
}

func TestUnitAt(t *testing.T) {
	c := &Column{
		Units: testUnits,
		Base:  []float64{-100, -300, -500},
	}
	tests := []struct {
		z    float64
		unit int
		ok   bool
	}{
		{0, 0, true},
		{-50, 0, true},
		{-100, 1, true}, // a base depth belongs to the unit below
		{-250, 1, true},
		{-499, 2, true},
		{-500, 2, true},
		{-5000, 2, true}, // basement catch-all
	}
	for _, test := range tests {
		unit, ok := c.UnitAt(test.z)
		if unit != test.unit || ok != test.ok {
			t.Errorf("z=%g: unit = %d (%v), want %d (%v)", test.z, unit, ok, test.unit, test.ok)
		}
	}
}

func TestUnitAtMissingBases(t *testing.T) {
	// Unmapped bases are skipped.
	c := &Column{Base: []float64{math.NaN(), -300, -500}}
	if i, ok := c.UnitAt(-50); !ok || i != 1 {
		t.Errorf("unit = %d (%v), want 1", i, ok)
	}
	// A fully unmapped column resolves no unit.
	c = &Column{Base: []float64{math.NaN(), math.NaN(), math.NaN()}}
	if i, ok := c.UnitAt(-50); ok || i != -1 {
		t.Errorf("unit = %d (%v), want -1 (false)", i, ok)
	}
}

func TestVelocityAt(t *testing.T) {
	c := &Column{
		Units: testUnits,
		Base:  []float64{-100, -300, -500},
		V0:    []float64{1800, 2500, 4400},
		K:     []float64{0.2, 0.5, 0},
	}
	tests := []struct {
		z, want float64
	}{
		{0, 1800},
		{-50, 1810},     // 1800 - 0.2*(-50)
		{-200, 2600},    // 2500 - 0.5*(-200)
		{-1000, 4400},   // constant-velocity basement
		{-100000, 4400}, // catch-all extends indefinitely
	}
	for _, test := range tests {
		if got := c.VelocityAt(test.z); math.Abs(got-test.want) > 1e-9 {
			t.Errorf("z=%g: Vinst = %g, want %g", test.z, got, test.want)
		}
	}

	c = &Column{Base: []float64{math.NaN()}, V0: []float64{1800}, K: []float64{0.2}}
	if got := c.VelocityAt(-50); !math.IsNaN(got) {
		t.Errorf("unmapped column: Vinst = %g, want NaN", got)
	}
}

func TestProfile(t *testing.T) {
	s := testSampler(t)
	z := []float64{0, -200, -1000}
	pr, err := s.Profile(geom.Point{X: 50, Y: 50}, z)
	if err != nil {
		t.Fatal(err)
	}
	wantUnit := []int{0, 1, 2}
	wantVinst := []float64{1800, 2600, 4400}
	wantSD := []float64{50, 80, 0}
	for k := range z {
		if pr.Unit[k] != wantUnit[k] {
			t.Errorf("z=%g: unit = %d, want %d", z[k], pr.Unit[k], wantUnit[k])
		}
		if math.Abs(pr.Vinst[k]-wantVinst[k]) > 1e-9 {
			t.Errorf("z=%g: Vinst = %g, want %g", z[k], pr.Vinst[k], wantVinst[k])
		}
		if pr.SD[k] != wantSD[k] {
			t.Errorf("z=%g: sd = %g, want %g", z[k], pr.SD[k], wantSD[k])
		}
	}
	if _, err := s.Profile(geom.Point{X: 50, Y: 50}, nil); err == nil {
		t.Error("empty depth axis: want error")
	}
}

func TestSection(t *testing.T) {
	s := testSampler(t)
	z := []float64{-50, -1000}
	sec, err := s.Section(geom.Point{X: 0, Y: 100}, geom.Point{X: 200, Y: 100}, 3, z)
	if err != nil {
		t.Fatal(err)
	}
	wantDist := []float64{0, 100, 200}
	for j, d := range wantDist {
		if math.Abs(sec.Distance[j]-d) > 1e-9 {
			t.Errorf("trace %d: distance = %g, want %g", j, sec.Distance[j], d)
		}
	}
	wantVinst := []float64{1810, 4400}
	for k := range z {
		for j := 0; j < 3; j++ {
			if got := sec.Vinst.Get(k, j); math.Abs(got-wantVinst[k]) > 1e-9 {
				t.Errorf("z=%g trace %d: Vinst = %g, want %g", z[k], j, got, wantVinst[k])
			}
		}
	}
	if got := sec.Unit.Get(0, 0); got != 0 {
		t.Errorf("unit at -50 m = %g, want 0", got)
	}
	if got := sec.Unit.Get(1, 0); got != 2 {
		t.Errorf("unit at -1000 m = %g, want 2", got)
	}

	if _, err := s.Section(geom.Point{}, geom.Point{X: 100}, 1, z); err == nil {
		t.Error("single-trace section: want error")
	}
}

func TestCube(t *testing.T) {
	s := testSampler(t)
	x := []float64{0, 100}
	y := []float64{0, 100}
	z := []float64{0, -1000}
	c, err := s.Cube(x, y, z)
	if err != nil {
		t.Fatal(err)
	}
	if !shapeEqual(c.Vinst.Shape, []int{2, 2, 2}) {
		t.Fatalf("Vinst shape = %v, want [2 2 2]", c.Vinst.Shape)
	}
	if !shapeEqual(c.Base.Shape, []int{3, 2, 2}) {
		t.Fatalf("Base shape = %v, want [3 2 2]", c.Base.Shape)
	}
	for j := range y {
		for i := range x {
			if got := c.Vinst.Get(0, j, i); math.Abs(got-1800) > 1e-9 {
				t.Errorf("surface Vinst at (%d, %d) = %g, want 1800", j, i, got)
			}
			if got := c.Vinst.Get(1, j, i); math.Abs(got-4400) > 1e-9 {
				t.Errorf("deep Vinst at (%d, %d) = %g, want 4400", j, i, got)
			}
			if got := c.Unit.Get(1, j, i); got != 2 {
				t.Errorf("deep unit at (%d, %d) = %g, want 2", j, i, got)
			}
		}
	}
	if _, err := s.Cube(nil, y, z); err == nil {
		t.Error("empty axis: want error")
	}
}

func TestCubeOutsideGrid(t *testing.T) {
	s := testSampler(t)
	c, err := s.Cube([]float64{-100, 50}, []float64{50}, []float64{-50})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Vinst.Get(0, 0, 0); !math.IsNaN(got) {
		t.Errorf("Vinst outside the grid = %g, want NaN", got)
	}
	if got := c.Vinst.Get(0, 0, 1); math.Abs(got-1810) > 1e-9 {
		t.Errorf("Vinst inside the grid = %g, want 1810", got)
	}
}

func TestCubeTransformed(t *testing.T) {
	s := testSampler(t)
	// A shift standing in for a coordinate conversion.
	shift := func(x, y float64) (float64, float64, error) {
		return x + 50, y + 50, nil
	}
	c, err := s.CubeTransformed([]float64{0, 100}, []float64{0, 100}, []float64{-50}, shift)
	if err != nil {
		t.Fatal(err)
	}
	// The cube keeps the query coordinates.
	if c.X[0] != 0 || c.X[1] != 100 {
		t.Errorf("cube x axis = %v, want [0 100]", c.X)
	}
	for j := 0; j < 2; j++ {
		for i := 0; i < 2; i++ {
			if got := c.Vinst.Get(0, j, i); math.Abs(got-1810) > 1e-9 {
				t.Errorf("Vinst at (%d, %d) = %g, want 1810", j, i, got)
			}
		}
	}

	if _, err := s.CubeTransformed([]float64{0}, []float64{0}, []float64{-50}, nil); err == nil {
		t.Error("nil transform: want error")
	}
}
