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

// Package zmap reads the ZMAP-plus ASCII grid format that the DGM-diep
// and VELMOD model grids are distributed in.
//
// A ZMAP-plus file consists of '!' comment lines, a header of three
// '@'-delimited records (grid name and values per physical line; field
// width, null value, and decimal places; row/column counts and grid
// extent), and the node values in column-major order with each column
// running from north to south.
package zmap

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/sparse"
)

// Grid is a regularly spaced rectangular grid of floating point values.
type Grid struct {
	// Name is the grid name from the file header.
	Name string

	// Rows and Cols are the node counts in the y and x directions.
	Rows, Cols int

	// XMin, XMax, YMin, and YMax give the coordinates of the outermost
	// grid nodes.
	XMin, XMax, YMin, YMax float64

	// NullValue is the value marking absent nodes in the file. Absent
	// nodes are NaN in Data.
	NullValue float64

	// Data holds the node values [y, x], with both axes ascending
	// (row 0 is the southernmost row).
	Data *sparse.DenseArray
}

// Open reads the ZMAP-plus grid in the named file.
func Open(filename string) (*Grid, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("zmap: %v", err)
	}
	defer f.Close()
	g, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("zmap: reading %s: %v", filename, err)
	}
	return g, nil
}

// Read reads a ZMAP-plus grid from r.
func Read(r io.Reader) (*Grid, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	g := new(Grid)
	if err := g.readHeader(scanner); err != nil {
		return nil, err
	}
	g.Data = sparse.ZerosDense(g.Rows, g.Cols)
	n := 0 // nodes read so far, column-major from the northwest corner
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		for _, field := range strings.Fields(line) {
			if n >= g.Rows*g.Cols {
				return nil, fmt.Errorf("more than %d grid nodes", g.Rows*g.Cols)
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing grid node %d: %v", n, err)
			}
			if v == g.NullValue {
				v = math.NaN()
			}
			col := n / g.Rows
			rowFromTop := n % g.Rows
			g.Data.Set(v, g.Rows-1-rowFromTop, col)
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n != g.Rows*g.Cols {
		return nil, fmt.Errorf("have %d grid nodes, want %d", n, g.Rows*g.Cols)
	}
	return g, nil
}

// readHeader consumes the three '@'-delimited header records.
func (g *Grid) readHeader(scanner *bufio.Scanner) error {
	var records []string
	started := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		if !started {
			if !strings.HasPrefix(line, "@") {
				return fmt.Errorf("unexpected line before header: %q", line)
			}
			started = true
			records = append(records, strings.TrimPrefix(line, "@"))
			continue
		}
		if line == "@" { // header terminator
			break
		}
		records = append(records, line)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(records) < 3 {
		return fmt.Errorf("truncated header: have %d records, want at least 3", len(records))
	}

	r0 := splitRecord(records[0])
	if len(r0) < 2 || !strings.EqualFold(r0[1], "GRID") {
		return fmt.Errorf("not a GRID file: header record %q", records[0])
	}
	g.Name = r0[0]

	r1 := splitRecord(records[1])
	if len(r1) < 2 {
		return fmt.Errorf("malformed header record %q", records[1])
	}
	var err error
	if g.NullValue, err = strconv.ParseFloat(r1[1], 64); err != nil {
		return fmt.Errorf("parsing null value %q: %v", r1[1], err)
	}

	r2 := splitRecord(records[2])
	if len(r2) < 6 {
		return fmt.Errorf("malformed header record %q", records[2])
	}
	ints := make([]int, 2)
	for i := 0; i < 2; i++ {
		if ints[i], err = strconv.Atoi(r2[i]); err != nil {
			return fmt.Errorf("parsing grid dimension %q: %v", r2[i], err)
		}
	}
	g.Rows, g.Cols = ints[0], ints[1]
	if g.Rows < 2 || g.Cols < 2 {
		return fmt.Errorf("grid must have at least 2 rows and columns; have %d x %d", g.Rows, g.Cols)
	}
	coords := make([]float64, 4)
	for i := 0; i < 4; i++ {
		if coords[i], err = strconv.ParseFloat(r2[i+2], 64); err != nil {
			return fmt.Errorf("parsing grid extent %q: %v", r2[i+2], err)
		}
	}
	g.XMin, g.XMax, g.YMin, g.YMax = coords[0], coords[1], coords[2], coords[3]
	return nil
}

// splitRecord splits a comma separated header record, trimming spaces.
func splitRecord(line string) []string {
	fields := strings.Split(line, ",")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

// XAxis returns the ascending x coordinates of the grid nodes.
func (g *Grid) XAxis() []float64 { return axis(g.XMin, g.XMax, g.Cols) }

// YAxis returns the ascending y coordinates of the grid nodes.
func (g *Grid) YAxis() []float64 { return axis(g.YMin, g.YMax, g.Rows) }

func axis(min, max float64, n int) []float64 {
	a := make([]float64, n)
	d := (max - min) / float64(n-1)
	for i := range a {
		a[i] = min + float64(i)*d
	}
	return a
}
