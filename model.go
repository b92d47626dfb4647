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

// Package dgmvelmod converts the DGM-diep V5 stratigraphic model and the
// VELMOD3.1 P-wave velocity model of the Dutch subsurface into a unified
// gridded representation and answers point, line, section, and volume
// sampling queries against it.
package dgmvelmod

import (
	"fmt"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// Version gives the version number of this library.
const Version = "0.3.1"

// DataVersion is the version of the converted model artifacts that
// this version of the library requires.
const DataVersion = "1"

// CRSUTM31 is the grid projection of the converted models: UTM zone 31
// on the international (Hayford) ellipsoid with the ED50 datum shift,
// matching the source ZMAP distributions (EPSG:23031).
const CRSUTM31 = "+proj=utm +zone=31 +ellps=intl +towgs84=-87,-98,-121,0,0,0,0 +units=m +no_defs"

// Header holds the grid metadata shared by the stratigraphic and
// velocity models.
type Header struct {
	// Model is the name of the source model, e.g. "DGM5" or "VELMOD3.1".
	Model string

	// CRS is the PROJ4 definition of the grid coordinate reference system.
	CRS string

	// X and Y are the grid node coordinates in ascending order.
	// The spacing may be irregular.
	X, Y []float64

	// Units holds the stratigraphic unit codes present in this model,
	// sorted top to bottom, and Ordering the corresponding canonical
	// ranks.
	Units    []string
	Ordering []int
}

// SR returns the parsed spatial reference of the model grid.
func (h *Header) SR() (*proj.SR, error) {
	sr, err := proj.Parse(h.CRS)
	if err != nil {
		return nil, fmt.Errorf("dgmvelmod: parsing model CRS: %v", err)
	}
	return sr, nil
}

// Bounds returns the horizontal extent of the model grid.
func (h *Header) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	if len(h.X) == 0 || len(h.Y) == 0 {
		return b
	}
	b.Extend((geom.Point{X: h.X[0], Y: h.Y[0]}).Bounds())
	b.Extend((geom.Point{X: h.X[len(h.X)-1], Y: h.Y[len(h.Y)-1]}).Bounds())
	return b
}

// UnitIndex returns the index of the given unit code within h.Units.
func (h *Header) UnitIndex(unit string) (int, error) {
	for i, u := range h.Units {
		if u == unit {
			return i, nil
		}
	}
	return -1, fmt.Errorf("dgmvelmod: unit %q not in model %s", unit, h.Model)
}

// check validates the axes and unit bookkeeping of the header.
func (h *Header) check() error {
	if len(h.X) < 2 || len(h.Y) < 2 {
		return fmt.Errorf("dgmvelmod: model %s: grid must have at least 2 nodes in each horizontal direction", h.Model)
	}
	for _, ax := range [][]float64{h.X, h.Y} {
		for i := 1; i < len(ax); i++ {
			if ax[i] <= ax[i-1] {
				return fmt.Errorf("dgmvelmod: model %s: grid coordinates must be strictly ascending", h.Model)
			}
		}
	}
	if len(h.Units) == 0 {
		return fmt.Errorf("dgmvelmod: model %s has no stratigraphic units", h.Model)
	}
	if len(h.Ordering) != len(h.Units) {
		return fmt.Errorf("dgmvelmod: model %s: have %d units but %d ordering entries",
			h.Model, len(h.Units), len(h.Ordering))
	}
	// Units must run top to bottom.
	if !sort.IntsAreSorted(h.Ordering) {
		return fmt.Errorf("dgmvelmod: model %s: units are not in stratigraphic order", h.Model)
	}
	return nil
}

// StratModel is the gridded representation of a layered stratigraphic
// model (DGM-diep V5): for each unit, the true vertical depth of the
// unit base across the model area.
type StratModel struct {
	Header

	// TVD gives the true vertical depth of the base of each unit
	// [unit, y, x] in meters relative to NAP, negative downward.
	// NaN marks nodes where the unit is absent or unmapped.
	TVD *sparse.DenseArray
}

// Check validates the model dimensions.
func (m *StratModel) Check() error {
	if err := m.Header.check(); err != nil {
		return err
	}
	if m.TVD == nil {
		return fmt.Errorf("dgmvelmod: model %s is missing variable tvd", m.Model)
	}
	want := []int{len(m.Units), len(m.Y), len(m.X)}
	if !shapeEqual(m.TVD.Shape, want) {
		return fmt.Errorf("dgmvelmod: model %s: tvd has shape %v, want %v", m.Model, m.TVD.Shape, want)
	}
	return nil
}

// VelocityModel is the gridded representation of a layered velocity
// model (VELMOD3.1). Within each unit the instantaneous P-wave velocity
// follows Vinst(z) = V0 - k*z, with z negative downward.
type VelocityModel struct {
	Header

	// KrigingTypes and Statistics name the interpolation variants of
	// the source model along the kriging_type and summary_statistic
	// array dimensions, e.g. ["ok", "sk"] and ["mean", "sd"].
	KrigingTypes []string
	Statistics   []string

	// V0 is the surface intercept velocity
	// [unit, kriging_type, summary_statistic, y, x] in m/s.
	V0 *sparse.DenseArray

	// V0Filled is V0 with NaN holes replaced by the areal mean of the
	// corresponding slice. Sampling uses this variable so that velocity
	// coverage matches the (generally wider) depth coverage of the
	// stratigraphic model.
	V0Filled *sparse.DenseArray

	// Vint is the interval velocity
	// [unit, kriging_type, summary_statistic, y, x] in m/s. It is only
	// populated for units modeled with a constant velocity (ZE).
	Vint *sparse.DenseArray

	// K is the vertical velocity gradient per unit in 1/s.
	K []float64
}

// Check validates the model dimensions.
func (m *VelocityModel) Check() error {
	if err := m.Header.check(); err != nil {
		return err
	}
	if len(m.KrigingTypes) == 0 || len(m.Statistics) == 0 {
		return fmt.Errorf("dgmvelmod: model %s is missing kriging type or summary statistic labels", m.Model)
	}
	want := []int{len(m.Units), len(m.KrigingTypes), len(m.Statistics), len(m.Y), len(m.X)}
	for _, v := range []struct {
		name string
		data *sparse.DenseArray
	}{{"V0", m.V0}, {"V0_filled", m.V0Filled}, {"Vint", m.Vint}} {
		if v.data == nil {
			return fmt.Errorf("dgmvelmod: model %s is missing variable %s", m.Model, v.name)
		}
		if !shapeEqual(v.data.Shape, want) {
			return fmt.Errorf("dgmvelmod: model %s: %s has shape %v, want %v", m.Model, v.name, v.data.Shape, want)
		}
	}
	if len(m.K) != len(m.Units) {
		return fmt.Errorf("dgmvelmod: model %s: have %d units but %d velocity gradients",
			m.Model, len(m.Units), len(m.K))
	}
	return nil
}

// krigingIndex returns the index of the named kriging type.
func (m *VelocityModel) krigingIndex(name string) (int, error) {
	for i, k := range m.KrigingTypes {
		if k == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("dgmvelmod: model %s has no kriging type %q", m.Model, name)
}

// statisticIndex returns the index of the named summary statistic.
func (m *VelocityModel) statisticIndex(name string) (int, error) {
	for i, s := range m.Statistics {
		if s == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("dgmvelmod: model %s has no summary statistic %q", m.Model, name)
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
