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
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// writeTemp writes a model to a temporary NetCDF file and returns its
// path.
func writeTemp(t *testing.T, name string, write func(*os.File) error) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := write(f); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// sameElements compares dense arrays treating NaN values as equal.
func sameElements(a, b *sparse.DenseArray) bool {
	if !shapeEqual(a.Shape, b.Shape) {
		return false
	}
	for i, v := range a.Elements {
		w := b.Elements[i]
		if math.IsNaN(v) && math.IsNaN(w) {
			continue
		}
		if v != w {
			return false
		}
	}
	return true
}

func TestStratModelRoundTrip(t *testing.T) {
	m := testStratModel()
	m.TVD.Set(math.NaN(), 0, 2, 2)
	path := writeTemp(t, "strat.ncf", m.Write)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := LoadStratModel(f)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != m.Model || got.CRS != m.CRS {
		t.Errorf("header = (%q, %q), want (%q, %q)", got.Model, got.CRS, m.Model, m.CRS)
	}
	if !reflect.DeepEqual(got.X, m.X) || !reflect.DeepEqual(got.Y, m.Y) {
		t.Errorf("axes = (%v, %v), want (%v, %v)", got.X, got.Y, m.X, m.Y)
	}
	if !reflect.DeepEqual(got.Units, m.Units) || !reflect.DeepEqual(got.Ordering, m.Ordering) {
		t.Errorf("units = (%v, %v), want (%v, %v)", got.Units, got.Ordering, m.Units, m.Ordering)
	}
	if !sameElements(got.TVD, m.TVD) {
		t.Error("tvd does not round-trip")
	}
}

func TestVelocityModelRoundTrip(t *testing.T) {
	m := testVelocityModel()
	m.V0.Set(math.NaN(), 1, 0, 0, 1, 1)
	m.K[2] = 0
	path := writeTemp(t, "vel.ncf", m.Write)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := LoadVelocityModel(f)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != m.Model {
		t.Errorf("model = %q, want %q", got.Model, m.Model)
	}
	if !reflect.DeepEqual(got.KrigingTypes, m.KrigingTypes) ||
		!reflect.DeepEqual(got.Statistics, m.Statistics) {
		t.Errorf("variants = (%v, %v), want (%v, %v)",
			got.KrigingTypes, got.Statistics, m.KrigingTypes, m.Statistics)
	}
	if !sameElements(got.V0, m.V0) || !sameElements(got.V0Filled, m.V0Filled) ||
		!sameElements(got.Vint, m.Vint) {
		t.Error("velocity variables do not round-trip")
	}
	if !reflect.DeepEqual(got.K, m.K) {
		t.Errorf("k = %v, want %v", got.K, m.K)
	}
}

func TestLoadStratModelBadDataVersion(t *testing.T) {
	m := testStratModel()
	bad := filepath.Join(t.TempDir(), "bad.ncf")
	bf, err := os.Create(bad)
	if err != nil {
		t.Fatal(err)
	}
	h := cdf.NewHeader([]string{"unit", "y", "x"},
		[]int{len(m.Units), len(m.Y), len(m.X)})
	h.AddAttribute("", "model", m.Model)
	h.AddAttribute("", "crs", m.CRS)
	h.AddAttribute("", "data_version", "0")
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.Define()
	if _, err := cdf.Create(bf, h); err != nil {
		t.Fatal(err)
	}
	bf.Close()

	rf, err := os.Open(bad)
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()
	if _, err := LoadStratModel(rf); err == nil {
		t.Error("incompatible data version: want error")
	}
}

func TestCubeWrite(t *testing.T) {
	s, err := NewSampler(testStratModel(), testVelocityModel())
	if err != nil {
		t.Fatal(err)
	}
	cube, err := s.Cube([]float64{0, 100}, []float64{0, 100}, []float64{0, -1000})
	if err != nil {
		t.Fatal(err)
	}
	path := writeTemp(t, "cube.ncf", cube.Write)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if got := cf.Header.Lengths("Vinst"); !shapeEqual(got, []int{2, 2, 2}) {
		t.Errorf("Vinst dimensions = %v, want [2 2 2]", got)
	}
	vinst, err := readVar(cf, "Vinst")
	if err != nil {
		t.Fatal(err)
	}
	if !sameElements(vinst, cube.Vinst) {
		t.Error("Vinst does not round-trip")
	}
	depth, err := readVar(cf, "depth")
	if err != nil {
		t.Fatal(err)
	}
	if !sameElements(depth, cube.Base) {
		t.Error("depth does not round-trip")
	}
}
