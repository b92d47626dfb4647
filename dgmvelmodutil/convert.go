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

package dgmvelmodutil

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"

	"github.com/preseis/dgmvelmod"
	"github.com/preseis/dgmvelmod/zmap"
)

// Convert converts the downloaded ZMAP distributions of DGM-diep V5 and
// VELMOD3.1 into the NetCDF model artifacts that the sampler consumes.
// The UTM31 variants of both models are used as they are the original
// and most consistent representation.
func Convert(downloadDir, outputDir, kFile string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("dgmvelmodutil: creating output directory: %v", err)
	}

	velmodFiles, err := findFiles(filepath.Join(downloadDir, "velmod31"), isVelmodFile)
	if err != nil {
		return err
	}
	dgmFiles, err := findFiles(filepath.Join(downloadDir, "dgmdeep5"), isDGMFile)
	if err != nil {
		return err
	}

	logrus.WithField("files", len(velmodFiles)).Info("dgmvelmod: converting VELMOD3.1")
	vel, err := convertVelmod(velmodFiles, kFile)
	if err != nil {
		return err
	}
	velOut := filepath.Join(outputDir, "VELMOD31_UTM31.ncf")
	if err := writeModel(velOut, vel.Write); err != nil {
		return err
	}
	logrus.WithField("file", velOut).Info("dgmvelmod: wrote velocity model")

	logrus.WithField("files", len(dgmFiles)).Info("dgmvelmod: converting DGM5")
	strat, err := convertDGM(dgmFiles)
	if err != nil {
		return err
	}
	dgmOut := filepath.Join(outputDir, "DGM5_UTM31.ncf")
	if err := writeModel(dgmOut, strat.Write); err != nil {
		return err
	}
	logrus.WithField("file", dgmOut).Info("dgmvelmod: wrote stratigraphic model")
	return nil
}

func writeModel(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dgmvelmodutil: creating %s: %v", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func findFiles(dir string, match func(string) bool) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && match(filepath.Base(path)) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dgmvelmodutil: scanning %s: %v", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("dgmvelmodutil: no model files found under %s; run the download command first", dir)
	}
	return files, nil
}

func isVelmodFile(name string) bool {
	return strings.HasSuffix(name, ".dat")
}

func isDGMFile(name string) bool {
	return strings.HasSuffix(name, "UTM31.zmap") &&
		strings.Contains(name, "tvd") && strings.Contains(name, "merge")
}

// stem returns the file name without directory and extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// parseDGMStem extracts the unit code and variable name from a DGM file
// stem of the form UNIT_var_on_offshore_merge_DGM50_ED50_UTM31.
func parseDGMStem(s string) (unit, variable string, err error) {
	fields := strings.Split(s, "_")
	if len(fields) < 2 {
		return "", "", fmt.Errorf("dgmvelmodutil: malformed DGM file name %q", s)
	}
	return fields[0], fields[1], nil
}

// parseVelmodStem extracts unit, variable, kriging type, and summary
// statistic from a VELMOD file stem of the form UNIT_xx_VAR_KTYPE[_sd].
// A missing statistic suffix denotes the kriging mean. The legacy NLM
// spelling of the NLNM unit is normalized.
func parseVelmodStem(s string) (unit, variable, ktype, stat string, err error) {
	s = strings.Replace(s, "NLM", "NLNM", 1)
	fields := strings.Split(s, "_")
	if len(fields) < 4 {
		return "", "", "", "", fmt.Errorf("dgmvelmodutil: malformed VELMOD file name %q", s)
	}
	stat = "mean"
	if len(fields) > 4 {
		stat = fields[4]
	}
	return fields[0], fields[2], fields[3], stat, nil
}

// convertDGM assembles the per-unit base depth grids into a
// stratigraphic model.
func convertDGM(files []string) (*dgmvelmod.StratModel, error) {
	type unitGrid struct {
		unit string
		grid *zmap.Grid
	}
	var grids []unitGrid
	for _, f := range files {
		unit, variable, err := parseDGMStem(stem(f))
		if err != nil {
			return nil, err
		}
		if variable != "tvd" {
			continue
		}
		g, err := zmap.Open(f)
		if err != nil {
			return nil, err
		}
		grids = append(grids, unitGrid{unit: unit, grid: g})
	}
	if len(grids) == 0 {
		return nil, fmt.Errorf("dgmvelmodutil: no DGM tvd grids found")
	}

	var xs, ys [][]float64
	for _, g := range grids {
		xs = append(xs, g.grid.XAxis())
		ys = append(ys, g.grid.YAxis())
	}
	x := unionAxis(xs)
	y := unionAxis(ys)

	units := make([]string, len(grids))
	for i, g := range grids {
		units[i] = g.unit
	}
	ordering, perm, err := canonicalOrder(units)
	if err != nil {
		return nil, err
	}

	tvd := nanDense(len(grids), len(y), len(x))
	for i, p := range perm {
		g := grids[p]
		if err := placeGrid(tvd, []int{i}, g.grid, x, y); err != nil {
			return nil, fmt.Errorf("dgmvelmodutil: unit %s: %v", g.unit, err)
		}
	}
	keepY, keepX := coverage(x, y, tvd)
	tvd = subsetYX(tvd, keepY, keepX)

	m := &dgmvelmod.StratModel{
		Header: dgmvelmod.Header{
			Model:    "DGM5",
			CRS:      dgmvelmod.CRSUTM31,
			X:        subset(x, keepX),
			Y:        subset(y, keepY),
			Units:    applyPerm(units, perm),
			Ordering: ordering,
		},
		TVD: tvd,
	}
	return m, m.Check()
}

// convertVelmod assembles the V0/Vint grids and the documented vertical
// velocity gradients into a velocity model.
func convertVelmod(files []string, kFile string) (*dgmvelmod.VelocityModel, error) {
	type key struct {
		unit, variable, ktype, stat string
	}
	grids := make(map[key]*zmap.Grid)
	unitSet := make(map[string]bool)
	ktypeSet := make(map[string]bool)
	statSet := make(map[string]bool)
	var xs, ys [][]float64
	for _, f := range files {
		unit, variable, ktype, stat, err := parseVelmodStem(stem(f))
		if err != nil {
			return nil, err
		}
		g, err := zmap.Open(f)
		if err != nil {
			return nil, err
		}
		grids[key{unit, variable, ktype, stat}] = g
		unitSet[unit] = true
		ktypeSet[ktype] = true
		statSet[stat] = true
		xs = append(xs, g.XAxis())
		ys = append(ys, g.YAxis())
	}
	x := unionAxis(xs)
	y := unionAxis(ys)

	units := sortedKeys(unitSet)
	ordering, perm, err := canonicalOrder(units)
	if err != nil {
		return nil, err
	}
	units = applyPerm(units, perm)
	ktypes := sortedKeys(ktypeSet)
	stats := sortedKeys(statSet)

	v0 := nanDense(len(units), len(ktypes), len(stats), len(y), len(x))
	vint := nanDense(len(units), len(ktypes), len(stats), len(y), len(x))
	for k, g := range grids {
		var dst *sparse.DenseArray
		switch k.variable {
		case "V0":
			dst = v0
		case "Vint":
			dst = vint
		default:
			logrus.WithField("variable", k.variable).Warn("dgmvelmod: skipping unknown VELMOD variable")
			continue
		}
		idx := []int{
			index(units, k.unit),
			index(ktypes, k.ktype),
			index(stats, k.stat),
		}
		if err := placeGrid(dst, idx, g, x, y); err != nil {
			return nil, fmt.Errorf("dgmvelmodutil: %s %s %s %s: %v", k.unit, k.variable, k.ktype, k.stat, err)
		}
	}

	keepY, keepX := coverage(x, y, v0, vint)
	v0 = subsetYX(v0, keepY, keepX)
	vint = subsetYX(vint, keepY, keepX)
	x = subset(x, keepX)
	y = subset(y, keepY)

	kvals, err := readGradients(kFile)
	if err != nil {
		return nil, err
	}
	kk := make([]float64, len(units))
	for i, u := range units {
		v, ok := kvals[u]
		if !ok {
			if u != "ZE" {
				logrus.WithField("unit", u).Warn("dgmvelmod: no velocity gradient documented")
			}
			v = math.NaN()
		}
		kk[i] = v
	}

	// The Zechstein is modeled with a constant (interval) velocity.
	// Fold it into the Vinst = V0 - k*z template by using Vint as the
	// intercept and a zero gradient.
	if ze := index(units, "ZE"); ze >= 0 {
		kk[ze] = 0
		copySlice(v0, vint, ze, len(y)*len(x)*len(ktypes)*len(stats))
	}

	filled := fillHoles(v0, len(units)*len(ktypes)*len(stats), len(y)*len(x))

	m := &dgmvelmod.VelocityModel{
		Header: dgmvelmod.Header{
			Model:    "VELMOD3.1",
			CRS:      dgmvelmod.CRSUTM31,
			X:        x,
			Y:        y,
			Units:    units,
			Ordering: ordering,
		},
		KrigingTypes: ktypes,
		Statistics:   stats,
		V0:           v0,
		V0Filled:     filled,
		Vint:         vint,
		K:            kk,
	}
	return m, m.Check()
}

// readGradients reads the per-unit vertical velocity gradients [1/s]
// from the semicolon separated CSV extracted from the VELMOD
// documentation.
func readGradients(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dgmvelmodutil: opening gradient table: %v", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = ';'
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dgmvelmodutil: reading gradient table: %v", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("dgmvelmodutil: gradient table %s is empty", path)
	}
	unitCol, kCol := -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "unit":
			unitCol = i
		case "k":
			kCol = i
		}
	}
	if unitCol < 0 || kCol < 0 {
		return nil, fmt.Errorf("dgmvelmodutil: gradient table %s needs 'unit' and 'k' columns", path)
	}
	out := make(map[string]float64)
	for _, rec := range records[1:] {
		if len(rec) <= unitCol || len(rec) <= kCol {
			continue
		}
		k, err := strconv.ParseFloat(strings.TrimSpace(rec[kCol]), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(rec[unitCol])] = k
	}
	return out, nil
}

// canonicalOrder returns the canonical top-to-bottom ranks of the given
// units along with the permutation that sorts them.
func canonicalOrder(units []string) (ordering, perm []int, err error) {
	ranks := make([]int, len(units))
	for i, u := range units {
		if ranks[i], err = dgmvelmod.UnitOrdering(u); err != nil {
			return nil, nil, err
		}
	}
	perm = make([]int, len(units))
	for i := range perm {
		perm[i] = i
	}
	sort.Slice(perm, func(i, j int) bool { return ranks[perm[i]] < ranks[perm[j]] })
	ordering = make([]int, len(units))
	for i, p := range perm {
		ordering[i] = ranks[p]
	}
	return ordering, perm, nil
}

func applyPerm(s []string, perm []int) []string {
	out := make([]string, len(s))
	for i, p := range perm {
		out[i] = s[p]
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func index(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// axisTolerance is the coordinate snapping distance when merging grid
// axes from separate ZMAP files, in meters. The source grids are spaced
// hundreds of meters apart.
const axisTolerance = 0.5

// unionAxis merges several ascending coordinate axes into one,
// collapsing coordinates closer than the snapping tolerance.
func unionAxis(axes [][]float64) []float64 {
	var all []float64
	for _, a := range axes {
		all = append(all, a...)
	}
	sort.Float64s(all)
	var out []float64
	for _, v := range all {
		if len(out) == 0 || v-out[len(out)-1] > axisTolerance {
			out = append(out, v)
		}
	}
	return out
}

// axisIndices maps each coordinate of sub onto the union axis.
func axisIndices(union, sub []float64) ([]int, error) {
	out := make([]int, len(sub))
	for i, v := range sub {
		j := sort.SearchFloat64s(union, v-axisTolerance)
		if j >= len(union) || math.Abs(union[j]-v) > axisTolerance {
			return nil, fmt.Errorf("coordinate %g not on the merged axis", v)
		}
		out[i] = j
	}
	return out, nil
}

// placeGrid copies the nodes of g into the [y, x] plane of dst selected
// by the leading indices idx, aligning on the union axes.
func placeGrid(dst *sparse.DenseArray, idx []int, g *zmap.Grid, x, y []float64) error {
	xi, err := axisIndices(x, g.XAxis())
	if err != nil {
		return err
	}
	yi, err := axisIndices(y, g.YAxis())
	if err != nil {
		return err
	}
	full := make([]int, len(idx)+2)
	copy(full, idx)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			full[len(idx)] = yi[r]
			full[len(idx)+1] = xi[c]
			dst.Set(g.Data.Get(r, c), full...)
		}
	}
	return nil
}

// nanDense creates a dense array initialized to NaN.
func nanDense(shape ...int) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	for i := range a.Elements {
		a.Elements[i] = math.NaN()
	}
	return a
}

// coverage reports which rows and columns of the union grid carry data
// in any of the given arrays, whose two trailing dimensions must be
// [y, x].
func coverage(x, y []float64, arrays ...*sparse.DenseArray) (keepY, keepX []bool) {
	keepY = make([]bool, len(y))
	keepX = make([]bool, len(x))
	for _, a := range arrays {
		nyx := len(y) * len(x)
		lead := len(a.Elements) / nyx
		for l := 0; l < lead; l++ {
			base := l * nyx
			for j := 0; j < len(y); j++ {
				for i := 0; i < len(x); i++ {
					if !math.IsNaN(a.Elements[base+j*len(x)+i]) {
						keepY[j] = true
						keepX[i] = true
					}
				}
			}
		}
	}
	return keepY, keepX
}

// subsetYX compacts the two trailing [y, x] dimensions of a to the kept
// rows and columns.
func subsetYX(a *sparse.DenseArray, keepY, keepX []bool) *sparse.DenseArray {
	ny, nx := len(keepY), len(keepX)
	nyOut, nxOut := countTrue(keepY), countTrue(keepX)
	shape := append([]int{}, a.Shape...)
	shape[len(shape)-2] = nyOut
	shape[len(shape)-1] = nxOut
	out := sparse.ZerosDense(shape...)
	lead := len(a.Elements) / (ny * nx)
	pos := 0
	for l := 0; l < lead; l++ {
		base := l * ny * nx
		for j := 0; j < ny; j++ {
			if !keepY[j] {
				continue
			}
			for i := 0; i < nx; i++ {
				if !keepX[i] {
					continue
				}
				out.Elements[pos] = a.Elements[base+j*nx+i]
				pos++
			}
		}
	}
	return out
}

func subset(axis []float64, keep []bool) []float64 {
	var out []float64
	for i, v := range axis {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out
}

func countTrue(b []bool) int {
	n := 0
	for _, v := range b {
		if v {
			n++
		}
	}
	return n
}

// copySlice copies the leading slice u of src into dst (both arrays
// share the same shape; n is the slice length).
func copySlice(dst, src *sparse.DenseArray, u, n int) {
	copy(dst.Elements[u*n:(u+1)*n], src.Elements[u*n:(u+1)*n])
}

// fillHoles returns a copy of a with the NaN values of every leading
// slice replaced by the mean of the slice's finite values. Slices
// without any finite value are left unfilled.
func fillHoles(a *sparse.DenseArray, slices, size int) *sparse.DenseArray {
	out := a.Copy()
	for s := 0; s < slices; s++ {
		sum, n := 0.0, 0
		for i := s * size; i < (s+1)*size; i++ {
			if v := a.Elements[i]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)
		for i := s * size; i < (s+1)*size; i++ {
			if math.IsNaN(out.Elements[i]) {
				out.Elements[i] = mean
			}
		}
	}
	return out
}
