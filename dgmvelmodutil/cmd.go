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

// Package dgmvelmodutil wires the dgmvelmod library into a command line
// tool: downloading the published model distributions, converting them
// into the gridded NetCDF artifacts, and sampling or serving the
// combined model.
package dgmvelmodutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/preseis/dgmvelmod"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to dgmvelmod.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "DownloadDir",
			usage: `
              DownloadDir is the directory the published model archives are
              downloaded to and extracted in.`,
			defaultVal: "download",
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags(), convertCmd.Flags()},
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the directory the converted NetCDF model
              artifacts are written to.`,
			defaultVal: "output",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "VelmodKFile",
			usage: `
              VelmodKFile is the semicolon separated CSV table of per-unit
              vertical velocity gradients extracted from the VELMOD3.1
              documentation.`,
			defaultVal: "config/velmod31_k.csv",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "StratModelData",
			usage: `
              StratModelData is the path to the converted stratigraphic
              model. It can be a local path, an http(s) URL, or a blob
              URL (file://, gs://, s3://).`,
			defaultVal: "output/DGM5_UTM31.ncf",
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags(), serveCmd.Flags()},
		},
		{
			name: "VelocityModelData",
			usage: `
              VelocityModelData is the path to the converted velocity
              model. It can be a local path, an http(s) URL, or a blob
              URL (file://, gs://, s3://).`,
			defaultVal: "output/VELMOD31_UTM31.ncf",
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags(), serveCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the NetCDF file the sampled cube is written to.`,
			defaultVal: "output/sample.ncf",
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Sample.X0",
			usage: `
              Sample.X0 is the western edge of the sample cube.`,
			defaultVal: 100000.0,
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Sample.X1",
			usage: `
              Sample.X1 is the eastern edge of the sample cube.`,
			defaultVal: 110000.0,
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Sample.NX",
			usage: `
              Sample.NX is the number of sample positions in the x direction.`,
			defaultVal: 41,
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Sample.Y0",
			usage: `
              Sample.Y0 is the southern edge of the sample cube.`,
			defaultVal: 450000.0,
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Sample.Y1",
			usage: `
              Sample.Y1 is the northern edge of the sample cube.`,
			defaultVal: 460000.0,
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Sample.NY",
			usage: `
              Sample.NY is the number of sample positions in the y direction.`,
			defaultVal: 41,
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Sample.Z0",
			usage: `
              Sample.Z0 is the deepest sampled depth in m relative to NAP
              (negative down).`,
			defaultVal: -5000.0,
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Sample.Z1",
			usage: `
              Sample.Z1 is the shallowest sampled depth in m relative to NAP.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Sample.NZ",
			usage: `
              Sample.NZ is the number of sampled depths.`,
			defaultVal: 51,
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Sample.Proj",
			usage: `
              Sample.Proj is the PROJ4 spatial reference of the sample cube
              x and y axes. If empty, the axes are taken to be in the model
              coordinate reference system (ED50 / UTM zone 31).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{sampleCmd.Flags()},
		},
		{
			name: "Serve.Addr",
			usage: `
              Serve.Addr is the address the query server listens on.`,
			defaultVal: ":8080",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
	}

	Root.AddCommand(versionCmd, downloadCmd, convertCmd, sampleCmd, serveCmd)

	Cfg = viper.New()
	Cfg.SetEnvPrefix("DGMVELMOD")
	Cfg.AutomaticEnv()
	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			default:
				panic(fmt.Sprintf("invalid argument type: %T", option.defaultVal))
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
		Cfg.SetDefault(option.name, option.defaultVal)
	}
}

// setConfig reads the configuration file, if one is specified.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("dgmvelmodutil: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "dgmvelmod",
	Short: "A gridded sampler for the DGM-diep V5 and VELMOD3.1 subsurface models.",
	Long: `dgmvelmod converts the published DGM-diep V5 stratigraphic model and
VELMOD3.1 P-wave velocity model of the Dutch subsurface into a unified
gridded representation and answers sampling queries against it.

Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the
format 'DGMVELMOD_var' where 'var' is the name of the variable to be
set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of dgmvelmod.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("dgmvelmod v%s\n", dgmvelmod.Version)
	},
	DisableAutoGenTag: true,
}

// downloadCmd fetches the published model archives.
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the published model distributions",
	Long: `download fetches the DGM-diep V5 and VELMOD3.1 ZIP archives from the
URLs listed under 'Downloads' in the configuration file and extracts
the ZMAP grid files the convert command needs. Already downloaded
files are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		downloads, err := getStringMapStringSlice("Downloads", Cfg)
		if err != nil {
			return err
		}
		if len(downloads) == 0 {
			return fmt.Errorf("dgmvelmodutil: no 'Downloads' configured; supply a configuration file")
		}
		return DownloadModelFiles(context.Background(), downloads,
			os.ExpandEnv(Cfg.GetString("DownloadDir")))
	},
	DisableAutoGenTag: true,
}

// convertCmd converts the downloaded ZMAP files into NetCDF artifacts.
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert the downloaded models to NetCDF",
	Long: `convert reads the extracted ZMAP grid files of both models and writes
the unified gridded NetCDF artifacts that the sample and serve
commands consume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Convert(
			os.ExpandEnv(Cfg.GetString("DownloadDir")),
			os.ExpandEnv(Cfg.GetString("OutputDir")),
			os.ExpandEnv(Cfg.GetString("VelmodKFile")))
	},
	DisableAutoGenTag: true,
}

// sampleCmd samples a cube from the combined model.
var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Sample a 3-D cube from the combined model",
	Long: `sample interpolates the combined stratigraphic and velocity model on
the configured x/y/z axes and writes the result to a NetCDF file. The
axes may be specified in a different coordinate reference system than
the model grid using Sample.Proj.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSampler(context.Background(), Cfg)
		if err != nil {
			return err
		}
		x, y, z, err := sampleAxes(Cfg)
		if err != nil {
			return err
		}
		ct, err := queryTransform(Cfg, s)
		if err != nil {
			return err
		}
		var cube *dgmvelmod.Cube
		if ct == nil {
			cube, err = s.Cube(x, y, z)
		} else {
			cube, err = s.CubeTransformed(x, y, z, ct)
		}
		if err != nil {
			return err
		}
		out := os.ExpandEnv(Cfg.GetString("OutputFile"))
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("dgmvelmodutil: creating output file: %v", err)
		}
		if err := cube.Write(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logrus.WithField("file", out).Info("dgmvelmod: wrote sample cube")
		return nil
	},
	DisableAutoGenTag: true,
}

// serveCmd starts the HTTP query server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sampling queries over HTTP",
	Long: `serve loads the combined model and answers column, profile, and
section queries over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSampler(context.Background(), Cfg)
		if err != nil {
			return err
		}
		srv := dgmvelmod.NewServer(s)
		addr := Cfg.GetString("Serve.Addr")
		logrus.WithField("addr", addr).Info("dgmvelmod: serving queries")
		return http.ListenAndServe(addr, srv)
	},
	DisableAutoGenTag: true,
}

// getStringMapStringSlice returns a map[string][]string from a viper
// configuration, accounting for the fact that it might be a json object
// if it was set from a command line argument.
func getStringMapStringSlice(varName string, cfg *viper.Viper) (map[string][]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return make(map[string][]string), nil
	case map[string][]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringSliceE(v)
	case string:
		if v == "" {
			return make(map[string][]string), nil
		}
		o := make(map[string][]string)
		if err := json.NewDecoder(strings.NewReader(v)).Decode(&o); err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("dgmvelmodutil: invalid type for configuration variable %s: %#v", varName, i)
	}
}
