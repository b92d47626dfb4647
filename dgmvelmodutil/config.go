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
	"context"
	"fmt"
	"os"

	"github.com/ctessum/geom/proj"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"
	"gonum.org/v1/gonum/floats"

	"github.com/preseis/dgmvelmod"
)

// loadSampler opens the converted model artifacts named in the
// configuration (downloading them first when they are URLs or blob
// paths) and combines them into a sampler.
func loadSampler(ctx context.Context, cfg *viper.Viper) (*dgmvelmod.Sampler, error) {
	stratPath, err := maybeDownload(ctx, os.ExpandEnv(cfg.GetString("StratModelData")))
	if err != nil {
		return nil, err
	}
	velPath, err := maybeDownload(ctx, os.ExpandEnv(cfg.GetString("VelocityModelData")))
	if err != nil {
		return nil, err
	}
	sf, err := os.Open(stratPath)
	if err != nil {
		return nil, fmt.Errorf("dgmvelmodutil: opening stratigraphic model: %v", err)
	}
	defer sf.Close()
	strat, err := dgmvelmod.LoadStratModel(sf)
	if err != nil {
		return nil, err
	}
	vf, err := os.Open(velPath)
	if err != nil {
		return nil, fmt.Errorf("dgmvelmodutil: opening velocity model: %v", err)
	}
	defer vf.Close()
	vel, err := dgmvelmod.LoadVelocityModel(vf)
	if err != nil {
		return nil, err
	}
	return dgmvelmod.NewSampler(strat, vel)
}

// sampleAxes builds the sample cube axes from the configuration.
func sampleAxes(cfg *viper.Viper) (x, y, z []float64, err error) {
	for _, ax := range []struct {
		name string
		dst  *[]float64
	}{
		{"X", &x}, {"Y", &y}, {"Z", &z},
	} {
		lo := cfg.GetFloat64("Sample." + ax.name + "0")
		hi := cfg.GetFloat64("Sample." + ax.name + "1")
		n, err := cast.ToIntE(cfg.Get("Sample.N" + ax.name))
		if err != nil || n < 2 {
			return nil, nil, nil, fmt.Errorf("dgmvelmodutil: Sample.N%s must be an integer >= 2", ax.name)
		}
		*ax.dst = floats.Span(make([]float64, n), lo, hi)
	}
	return x, y, z, nil
}

// queryTransform returns the transform from the configured query
// spatial reference into the model grid, or nil when the query
// coordinates are already in model coordinates.
func queryTransform(cfg *viper.Viper, s *dgmvelmod.Sampler) (proj.Transformer, error) {
	def := cfg.GetString("Sample.Proj")
	if def == "" {
		return nil, nil
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("dgmvelmodutil: parsing Sample.Proj: %v", err)
	}
	return s.InputTransform(sr)
}
