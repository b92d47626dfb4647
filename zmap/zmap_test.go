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

package zmap

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

const testGrid = `! test grid
@TEST, GRID, 5
15, -999.0, , 4, 1
3, 2, 0.0, 100.0, 0.0, 200.0
@
! node values, column-major, north to south
 -999.0  1.0  2.0
  3.0  4.0  5.0
`

func TestRead(t *testing.T) {
	g, err := Read(strings.NewReader(testGrid))
	if err != nil {
		t.Fatal(err)
	}
	if g.Name != "TEST" {
		t.Errorf("name = %q, want TEST", g.Name)
	}
	if g.Rows != 3 || g.Cols != 2 {
		t.Fatalf("size = %d x %d, want 3 x 2", g.Rows, g.Cols)
	}
	if g.XMin != 0 || g.XMax != 100 || g.YMin != 0 || g.YMax != 200 {
		t.Errorf("extent = (%g %g %g %g), want (0 100 0 200)",
			g.XMin, g.XMax, g.YMin, g.YMax)
	}
	if g.NullValue != -999 {
		t.Errorf("null value = %g, want -999", g.NullValue)
	}

	// The first file value is the northwest corner; Data row 0 is the
	// southernmost row.
	want := [][]float64{
		{2, 5},
		{1, 4},
		{math.NaN(), 3},
	}
	for j, row := range want {
		for i, w := range row {
			got := g.Data.Get(j, i)
			if math.IsNaN(w) {
				if !math.IsNaN(got) {
					t.Errorf("node (%d, %d) = %g, want NaN", j, i, got)
				}
				continue
			}
			if got != w {
				t.Errorf("node (%d, %d) = %g, want %g", j, i, got, w)
			}
		}
	}
}

func TestAxes(t *testing.T) {
	g, err := Read(strings.NewReader(testGrid))
	if err != nil {
		t.Fatal(err)
	}
	if x := g.XAxis(); !reflect.DeepEqual(x, []float64{0, 100}) {
		t.Errorf("x axis = %v, want [0 100]", x)
	}
	if y := g.YAxis(); !reflect.DeepEqual(y, []float64{0, 100, 200}) {
		t.Errorf("y axis = %v, want [0 100 200]", y)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name, text string
	}{
		{"empty", ""},
		{"data before header", "1.0 2.0\n"},
		{"not a grid", "@TEST, TABLE, 5\n15, -999.0, , 4, 1\n3, 2, 0, 100, 0, 200\n@\n"},
		{"truncated data", "@TEST, GRID, 5\n15, -999.0, , 4, 1\n3, 2, 0, 100, 0, 200\n@\n1 2 3 4 5\n"},
		{"too much data", "@TEST, GRID, 5\n15, -999.0, , 4, 1\n3, 2, 0, 100, 0, 200\n@\n1 2 3 4 5 6 7\n"},
		{"bad value", "@TEST, GRID, 5\n15, -999.0, , 4, 1\n3, 2, 0, 100, 0, 200\n@\n1 2 3 4 5 x\n"},
		{"bad dimensions", "@TEST, GRID, 5\n15, -999.0, , 4, 1\n1, 2, 0, 100, 0, 200\n@\n1 2\n"},
	}
	for _, test := range tests {
		if _, err := Read(strings.NewReader(test.text)); err == nil {
			t.Errorf("%s: want error", test.name)
		}
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open("does/not/exist.zmap"); err == nil {
		t.Error("missing file: want error")
	}
}
