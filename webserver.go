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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Server serves sampling queries against a combined model over HTTP:
//
//	/column/{x}/{y}                    per-unit column as JSON
//	/profile/{x}/{y}                   velocity-depth profile as PNG
//	/section/{x0}/{y0}/{x1}/{y1}       velocity section as PNG
//
// Coordinates are in the model coordinate reference system. Rendered
// images are deduplicated and cached in memory.
type Server struct {
	sampler *Sampler

	// Log receives request logging. The default is the logrus standard
	// logger.
	Log logrus.FieldLogger

	// ZTop and ZBottom bound the depth axis of rendered profiles and
	// sections (m relative to NAP, negative down), sampled at NZ
	// depths. Sections use NTrace horizontal sample positions.
	ZTop, ZBottom float64
	NZ, NTrace    int

	mux   *http.ServeMux
	cache *requestcache.Cache
}

// NewServer creates a query server for the given sampler.
func NewServer(s *Sampler) *Server {
	srv := &Server{
		sampler: s,
		Log:     logrus.StandardLogger(),
		ZTop:    0,
		ZBottom: -5000,
		NZ:      101,
		NTrace:  201,
	}
	srv.cache = requestcache.NewCache(srv.render, 1,
		requestcache.Deduplicate(), requestcache.Memory(100))
	srv.mux = http.NewServeMux()
	srv.mux.HandleFunc("/column/", srv.columnHandler)
	srv.mux.HandleFunc("/profile/", srv.imageHandler)
	srv.mux.HandleFunc("/section/", srv.imageHandler)
	return srv
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.Log.WithFields(logrus.Fields{
		"addr": r.RemoteAddr,
		"path": r.URL.Path,
	}).Info("dgmvelmod: query")
	srv.mux.ServeHTTP(w, r)
}

// depths returns the depth axis used for rendered profiles and
// sections.
func (srv *Server) depths() []float64 {
	return floats.Span(make([]float64, srv.NZ), srv.ZTop, srv.ZBottom)
}

func (srv *Server) columnHandler(w http.ResponseWriter, r *http.Request) {
	coords, err := pathCoords("/column/", r, 2)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := srv.sampler.Column(geom.Point{X: coords[0], Y: coords[1]})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	e := json.NewEncoder(w)
	if err := e.Encode(c); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// imageHandler serves the cached PNG renderings.
func (srv *Server) imageHandler(w http.ResponseWriter, r *http.Request) {
	req := srv.cache.NewRequest(r.Context(), r.URL.Path, r.URL.Path)
	result, err := req.Result()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(result.([]byte))
}

// render creates the PNG for a profile or section request path. It is
// the processor function for the request cache.
func (srv *Server) render(ctx context.Context, payload interface{}) (interface{}, error) {
	path := payload.(string)
	switch {
	case strings.HasPrefix(path, "/profile/"):
		coords, err := splitCoords(strings.TrimPrefix(path, "/profile/"), 2)
		if err != nil {
			return nil, err
		}
		return srv.renderProfile(coords[0], coords[1])
	case strings.HasPrefix(path, "/section/"):
		coords, err := splitCoords(strings.TrimPrefix(path, "/section/"), 4)
		if err != nil {
			return nil, err
		}
		return srv.renderSection(coords[0], coords[1], coords[2], coords[3])
	}
	return nil, fmt.Errorf("dgmvelmod: unknown render path %s", path)
}

func (srv *Server) renderProfile(x, y float64) ([]byte, error) {
	pr, err := srv.sampler.Profile(geom.Point{X: x, Y: y}, srv.depths())
	if err != nil {
		return nil, err
	}
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = fmt.Sprintf("velocity profile at (%.0f, %.0f)", x, y)
	p.X.Label.Text = "Vinst (m/s)"
	p.Y.Label.Text = "depth (m NAP)"
	var xy plotter.XYs
	for i, z := range pr.Z {
		if math.IsNaN(pr.Vinst[i]) {
			continue
		}
		xy = append(xy, struct{ X, Y float64 }{X: pr.Vinst[i], Y: z})
	}
	if len(xy) == 0 {
		return nil, fmt.Errorf("dgmvelmod: no model coverage at (%g, %g)", x, y)
	}
	if err := plotutil.AddLinePoints(p, xy); err != nil {
		return nil, err
	}
	return writePNG(p, 4*vg.Inch, 6*vg.Inch)
}

func (srv *Server) renderSection(x0, y0, x1, y1 float64) ([]byte, error) {
	sec, err := srv.sampler.Section(
		geom.Point{X: x0, Y: y0}, geom.Point{X: x1, Y: y1},
		srv.NTrace, srv.depths())
	if err != nil {
		return nil, err
	}
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = fmt.Sprintf("velocity section (%.0f, %.0f) - (%.0f, %.0f)", x0, y0, x1, y1)
	p.X.Label.Text = "distance (m)"
	p.Y.Label.Text = "depth (m NAP)"
	h := plotter.NewHeatMap(&sectionGrid{sec}, palette.Heat(12, 1))
	p.Add(h)
	return writePNG(p, 6*vg.Inch, 4*vg.Inch)
}

func writePNG(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sectionGrid adapts a Section to the heat map grid interface.
type sectionGrid struct {
	sec *Section
}

func (g *sectionGrid) Dims() (c, r int) { return len(g.sec.Distance), len(g.sec.Z) }
func (g *sectionGrid) X(c int) float64  { return g.sec.Distance[c] }
func (g *sectionGrid) Y(r int) float64  { return g.sec.Z[r] }
func (g *sectionGrid) Z(c, r int) float64 {
	return g.sec.Vinst.Get(r, c)
}

// pathCoords parses n slash-separated coordinates after base from the
// request path.
func pathCoords(base string, r *http.Request, n int) ([]float64, error) {
	return splitCoords(r.URL.Path[len(base):], n)
}

func splitCoords(s string, n int) ([]float64, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != n {
		return nil, fmt.Errorf("dgmvelmod: request needs %d coordinates; got %d", n, len(parts))
	}
	coords := make([]float64, n)
	for i, p := range parts {
		var err error
		if coords[i], err = strconv.ParseFloat(p, 64); err != nil {
			return nil, fmt.Errorf("dgmvelmod: parsing coordinate %q: %v", p, err)
		}
	}
	return coords, nil
}
