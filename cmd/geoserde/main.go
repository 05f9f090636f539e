// Package main provides the geoserde command line tool for converting and
// inspecting GeoJSON and FlatGeobuf datasets.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	geoserde "github.com/tingold/orb-geoserde"
	"github.com/tingold/orb-geoserde/flatgeobuf"
	"github.com/tingold/orb-geoserde/geojsonio"
	"github.com/tingold/orb-geoserde/internal/config"
	"github.com/tingold/orb-geoserde/internal/logger"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
	log     zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "geoserde",
	Short: "Convert and inspect geospatial feature datasets",
	Long: `geoserde reads GeoJSON and FlatGeobuf datasets through a single feature
processing pipeline.

Formats are chosen by file extension:
  .geojson, .json   GeoJSON FeatureCollection, Feature or geometry
  .fgb              FlatGeobuf`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var convertCmd = &cobra.Command{
	Use:   "convert <input> <output>",
	Short: "Convert a dataset between formats",
	Args:  cobra.ExactArgs(2),
	RunE:  runConvert,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.fgb>",
	Short: "Print the FlatGeobuf header",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var dumpCmd = &cobra.Command{
	Use:   "dump <input>",
	Short: "Print every feature as one JSON object per line",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("geoserde %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./geoserde.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")

	// Output flags
	convertCmd.Flags().String("name", "", "layer name (default: dataset name)")
	convertCmd.Flags().String("description", "", "layer description")
	convertCmd.Flags().Bool("index", true, "write a spatial index")
	convertCmd.Flags().Int("crs", 4326, "EPSG code of the output CRS, 0 for none")

	// Decode flags
	dumpCmd.Flags().Bool("strict", false, "fail on fields not consumed by the decoder")

	// Bind flags to viper
	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = v.BindPFlag("output.name", convertCmd.Flags().Lookup("name"))
	_ = v.BindPFlag("output.description", convertCmd.Flags().Lookup("description"))
	_ = v.BindPFlag("output.include_index", convertCmd.Flags().Lookup("index"))
	_ = v.BindPFlag("output.crs_code", convertCmd.Flags().Lookup("crs"))
	_ = v.BindPFlag("decode.error_unused", dumpCmd.Flags().Lookup("strict"))

	rootCmd.AddCommand(convertCmd, inspectCmd, dumpCmd, versionCmd)
}

func setup(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err = logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return err
}

type format int

const (
	formatUnknown format = iota
	formatGeoJSON
	formatFlatGeobuf
)

func formatOf(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return formatGeoJSON
	case ".fgb":
		return formatFlatGeobuf
	}
	return formatUnknown
}

// openSource opens path as a dataset source.
func openSource(path string) (geoserde.Datasource, error) {
	switch formatOf(path) {
	case formatGeoJSON:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r, err := geojsonio.NewReader(f)
		if err != nil {
			return nil, err
		}
		return r, nil
	case formatFlatGeobuf:
		r, err := flatgeobuf.NewReader(path)
		if err != nil {
			return nil, err
		}
		r.SetLogger(log)
		return r, nil
	}
	return nil, fmt.Errorf("unsupported input format: %s", path)
}

// newSink returns a consumer writing the dataset to w in the format of path.
func newSink(path string, w io.Writer) (geoserde.FeatureProcessor, error) {
	switch formatOf(path) {
	case formatGeoJSON:
		return geojsonio.NewWriter(w, geoserde.WithLogger(log)), nil
	case formatFlatGeobuf:
		opts := &flatgeobuf.Options{
			Name:         cfg.Output.Name,
			Description:  cfg.Output.Description,
			IncludeIndex: cfg.Output.IncludeIndex,
			Logger:       log,
		}
		if cfg.Output.CRSCode > 0 {
			opts.CRS = &flatgeobuf.CRS{Code: cfg.Output.CRSCode}
			if cfg.Output.CRSCode == 4326 {
				opts.CRS = flatgeobuf.WGS84()
			}
		}
		return flatgeobuf.NewWriter(w, opts), nil
	}
	return nil, fmt.Errorf("unsupported output format: %s", path)
}

func runConvert(_ *cobra.Command, args []string) error {
	in, out := args[0], args[1]

	src, err := openSource(in)
	if err != nil {
		return fmt.Errorf("opening %s: %w", in, err)
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	sink, err := newSink(out, w)
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := src.Process(sink); err != nil {
		_ = f.Close()
		return fmt.Errorf("converting %s: %w", in, err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	log.Info().Str("input", in).Str("output", out).Msg("converted")
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	if formatOf(args[0]) != formatFlatGeobuf {
		return fmt.Errorf("inspect expects a .fgb file: %s", args[0])
	}
	r, err := flatgeobuf.NewReader(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	if h == nil {
		return fmt.Errorf("%s: missing header", args[0])
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:        %s\n", h.Name)
	if h.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", h.Description)
	}
	fmt.Fprintf(out, "Geometry:    %s\n", h.GeometryType)
	fmt.Fprintf(out, "Features:    %d\n", h.FeaturesCount)
	fmt.Fprintf(out, "Index:       %t\n", h.HasIndex)
	fmt.Fprintf(out, "Envelope:    %v\n", h.Envelope)
	if h.CRS != nil {
		fmt.Fprintf(out, "CRS:         EPSG:%d %s\n", h.CRS.Code, h.CRS.Name)
	}
	if len(h.Columns) > 0 {
		fmt.Fprintln(out, "Columns:")
		for _, c := range h.Columns {
			fmt.Fprintf(out, "  %-20s %s\n", c.Name, c.Type)
		}
	}
	return nil
}

func runDump(cmd *cobra.Command, args []string) error {
	src, err := openSource(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	records, err := geoserde.FromDatasource[map[string]interface{}](src,
		geoserde.WithLogger(log),
		geoserde.WithErrorUnused(cfg.Decode.ErrorUnused),
	)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	log.Debug().Int("features", len(records)).Msg("dumped")
	return nil
}
