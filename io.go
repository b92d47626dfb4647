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
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// LoadStratModel reads a converted stratigraphic model from a NetCDF
// file.
func LoadStratModel(r cdf.ReaderWriterAt) (*StratModel, error) {
	f, err := cdf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("dgmvelmod: opening stratigraphic model: %v", err)
	}
	m := new(StratModel)
	if err := m.Header.read(f); err != nil {
		return nil, err
	}
	if m.TVD, err = readVar(f, "tvd"); err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, err
	}
	return m, nil
}

// Write writes the model to w in NetCDF format.
func (m *StratModel) Write(w *os.File) error {
	if err := m.Check(); err != nil {
		return err
	}
	h := cdf.NewHeader(
		[]string{"unit", "y", "x"},
		[]int{len(m.Units), len(m.Y), len(m.X)})
	m.Header.define(h)
	h.AddVariable("tvd", []string{"unit", "y", "x"}, []float64{0})
	h.AddAttribute("tvd", "description", "true vertical depth of the unit base relative to NAP, negative down")
	h.AddAttribute("tvd", "units", "m")
	h.Define()
	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("dgmvelmod: writing stratigraphic model: %v", err)
	}
	for _, v := range []struct {
		name string
		data []float64
	}{
		{"x", m.X}, {"y", m.Y}, {"tvd", m.TVD.Elements},
	} {
		if err := writeVar(f, v.name, v.data); err != nil {
			return err
		}
	}
	if err := writeIntVar(f, "ordering", m.Ordering); err != nil {
		return err
	}
	return cdf.UpdateNumRecs(w)
}

// LoadVelocityModel reads a converted velocity model from a NetCDF file.
func LoadVelocityModel(r cdf.ReaderWriterAt) (*VelocityModel, error) {
	f, err := cdf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("dgmvelmod: opening velocity model: %v", err)
	}
	m := new(VelocityModel)
	if err := m.Header.read(f); err != nil {
		return nil, err
	}
	m.KrigingTypes = attrList(f, "kriging_types")
	m.Statistics = attrList(f, "summary_statistics")
	if m.V0, err = readVar(f, "V0"); err != nil {
		return nil, err
	}
	if m.V0Filled, err = readVar(f, "V0_filled"); err != nil {
		return nil, err
	}
	if m.Vint, err = readVar(f, "Vint"); err != nil {
		return nil, err
	}
	k, err := readVar(f, "k")
	if err != nil {
		return nil, err
	}
	m.K = k.Elements
	if err := m.Check(); err != nil {
		return nil, err
	}
	return m, nil
}

// Write writes the model to w in NetCDF format.
func (m *VelocityModel) Write(w *os.File) error {
	if err := m.Check(); err != nil {
		return err
	}
	h := cdf.NewHeader(
		[]string{"unit", "kriging_type", "summary_statistic", "y", "x"},
		[]int{len(m.Units), len(m.KrigingTypes), len(m.Statistics), len(m.Y), len(m.X)})
	m.Header.define(h)
	h.AddAttribute("", "kriging_types", strings.Join(m.KrigingTypes, ","))
	h.AddAttribute("", "summary_statistics", strings.Join(m.Statistics, ","))
	dims5 := []string{"unit", "kriging_type", "summary_statistic", "y", "x"}
	for _, v := range []struct {
		name, description string
	}{
		{"V0", "surface intercept velocity"},
		{"V0_filled", "surface intercept velocity with holes filled by the slice mean"},
		{"Vint", "interval velocity (constant-velocity units only)"},
	} {
		h.AddVariable(v.name, dims5, []float64{0})
		h.AddAttribute(v.name, "description", v.description)
		h.AddAttribute(v.name, "units", "m s-1")
	}
	h.AddVariable("k", []string{"unit"}, []float64{0})
	h.AddAttribute("k", "description", "vertical velocity gradient")
	h.AddAttribute("k", "units", "s-1")
	h.Define()
	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("dgmvelmod: writing velocity model: %v", err)
	}
	for _, v := range []struct {
		name string
		data []float64
	}{
		{"x", m.X}, {"y", m.Y},
		{"V0", m.V0.Elements}, {"V0_filled", m.V0Filled.Elements},
		{"Vint", m.Vint.Elements}, {"k", m.K},
	} {
		if err := writeVar(f, v.name, v.data); err != nil {
			return err
		}
	}
	if err := writeIntVar(f, "ordering", m.Ordering); err != nil {
		return err
	}
	return cdf.UpdateNumRecs(w)
}

// Write writes the sampled cube to w in NetCDF format.
func (c *Cube) Write(w *os.File) error {
	h := cdf.NewHeader(
		[]string{"unit", "z", "y", "x"},
		[]int{len(c.Units), len(c.Z), len(c.Y), len(c.X)})
	h.AddAttribute("", "comment", "combined DGM/VELMOD sample cube")
	h.AddAttribute("", "crs", c.CRS)
	h.AddAttribute("", "data_version", DataVersion)
	h.AddAttribute("", "units", strings.Join(c.Units, ","))
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddVariable("y", []string{"y"}, []float64{0})
	h.AddVariable("z", []string{"z"}, []float64{0})
	dims3 := []string{"z", "y", "x"}
	dimsU := []string{"unit", "y", "x"}
	for _, v := range []struct {
		name        string
		dims        []string
		description string
		units       string
	}{
		{"Vinst", dims3, "instantaneous P-wave velocity", "m s-1"},
		{"unit_index", dims3, "index of the containing stratigraphic unit, top to bottom", "1"},
		{"depth", dimsU, "true vertical depth of the unit base relative to NAP, negative down", "m"},
		{"V0", dimsU, "surface intercept velocity, simple kriging mean", "m s-1"},
		{"V0_sd", dimsU, "surface intercept velocity, simple kriging standard deviation", "m s-1"},
	} {
		h.AddVariable(v.name, v.dims, []float64{0})
		h.AddAttribute(v.name, "description", v.description)
		h.AddAttribute(v.name, "units", v.units)
	}
	h.AddVariable("k", []string{"unit"}, []float64{0})
	h.AddAttribute("k", "description", "vertical velocity gradient")
	h.AddAttribute("k", "units", "s-1")
	h.Define()
	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("dgmvelmod: writing sample cube: %v", err)
	}
	for _, v := range []struct {
		name string
		data []float64
	}{
		{"x", c.X}, {"y", c.Y}, {"z", c.Z},
		{"Vinst", c.Vinst.Elements}, {"unit_index", c.Unit.Elements},
		{"depth", c.Base.Elements}, {"V0", c.V0.Elements},
		{"V0_sd", c.V0SD.Elements}, {"k", c.K},
	} {
		if err := writeVar(f, v.name, v.data); err != nil {
			return err
		}
	}
	return cdf.UpdateNumRecs(w)
}

// read fills the header from the file's global attributes and
// coordinate variables.
func (h *Header) read(f *cdf.File) error {
	var err error
	h.Model = attrString(f, "model")
	h.CRS = attrString(f, "crs")
	if v := attrString(f, "data_version"); v != DataVersion {
		return fmt.Errorf("dgmvelmod: model data version %q is incompatible with the required version %q",
			v, DataVersion)
	}
	h.Units = attrList(f, "units")
	if h.X, err = readFloats(f, "x"); err != nil {
		return err
	}
	if h.Y, err = readFloats(f, "y"); err != nil {
		return err
	}
	if h.Ordering, err = readInts(f, "ordering"); err != nil {
		return err
	}
	return nil
}

// define adds the header's metadata and coordinate variables to a
// NetCDF header under construction.
func (h *Header) define(ch *cdf.Header) {
	ch.AddAttribute("", "model", h.Model)
	ch.AddAttribute("", "crs", h.CRS)
	ch.AddAttribute("", "data_version", DataVersion)
	ch.AddAttribute("", "units", strings.Join(h.Units, ","))
	ch.AddVariable("x", []string{"x"}, []float64{0})
	ch.AddVariable("y", []string{"y"}, []float64{0})
	ch.AddVariable("ordering", []string{"unit"}, []int32{0})
}

func attrString(f *cdf.File, name string) string {
	a := f.Header.GetAttribute("", name)
	if a == nil {
		return ""
	}
	s, _ := a.(string)
	return s
}

func attrList(f *cdf.File, name string) []string {
	s := attrString(f, name)
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// readVar reads a float64 variable of any rank into a dense array.
func readVar(f *cdf.File, name string) (*sparse.DenseArray, error) {
	dims := f.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("dgmvelmod: variable %s not in file", name)
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("dgmvelmod: reading variable %s: %v", name, err)
	}
	data := sparse.ZerosDense(dims...)
	switch b := buf.(type) {
	case []float64:
		copy(data.Elements, b)
	case []float32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("dgmvelmod: variable %s has unsupported type %T", name, buf)
	}
	return data, nil
}

func readFloats(f *cdf.File, name string) ([]float64, error) {
	d, err := readVar(f, name)
	if err != nil {
		return nil, err
	}
	return d.Elements, nil
}

func readInts(f *cdf.File, name string) ([]int, error) {
	dims := f.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("dgmvelmod: variable %s not in file", name)
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(dims[0])
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("dgmvelmod: reading variable %s: %v", name, err)
	}
	b, ok := buf.([]int32)
	if !ok {
		return nil, fmt.Errorf("dgmvelmod: variable %s has unsupported type %T", name, buf)
	}
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out, nil
}

func writeVar(f *cdf.File, name string, data []float64) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("dgmvelmod: writing variable %s: %v", name, err)
	}
	return nil
}

func writeIntVar(f *cdf.File, name string, data []int) error {
	b := make([]int32, len(data))
	for i, v := range data {
		b[i] = int32(v)
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("dgmvelmod: writing variable %s: %v", name, err)
	}
	return nil
}
