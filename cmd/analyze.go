package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/property-analyzer/internal/model"
)

var (
	analyzeFile       string
	analyzeCoords     string
	analyzeRadius     float64
	analyzeCategories []string
	analyzeLayers     []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a single parcel and print the result as JSON",
	Example: `  property-analyzer analyze --coords "106.7005,10.7765;106.7013,10.7765;106.7013,10.7773;106.7005,10.7773"
  property-analyzer analyze --file parcel.json --layers power,industrial`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(analyzeFile, analyzeCoords, analyzeRadius, analyzeCategories, analyzeLayers)
		if err != nil {
			return err
		}

		env, err := initPipeline(cmd.Context(), cfg, "analyze", false)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Analyze(cmd.Context(), req)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFile, "file", "", "request JSON file")
	f.StringVar(&analyzeCoords, "coords", "", `parcel vertices as "lng,lat;lng,lat;..."`)
	f.Float64Var(&analyzeRadius, "radius", 0, "search radius in metres (default from config)")
	f.StringSliceVar(&analyzeCategories, "categories", nil, "amenity categories (default all)")
	f.StringSliceVar(&analyzeLayers, "layers", nil, "infrastructure layers (default all)")
	rootCmd.AddCommand(analyzeCmd)
}

// buildRequest reads a request from file or coords. Flags override the
// file's radius, categories and layers when set.
func buildRequest(file, coords string, radius float64, categories, layers []string) (model.Request, error) {
	var req model.Request
	switch {
	case file != "" && coords != "":
		return req, eris.New("analyze: use either --file or --coords, not both")
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return req, eris.Wrap(err, "analyze: read request file")
		}
		if err := json.Unmarshal(b, &req); err != nil {
			return req, eris.Wrap(err, "analyze: parse request file")
		}
	case coords != "":
		pts, err := parseCoords(coords)
		if err != nil {
			return req, err
		}
		req.Coordinates = pts
	default:
		return req, eris.New("analyze: --file or --coords is required")
	}

	if radius > 0 {
		req.Radius = radius
	}
	if len(categories) > 0 {
		req.Categories = req.Categories[:0]
		for _, c := range categories {
			cat := model.Category(strings.TrimSpace(c))
			if !cat.Valid() {
				return req, eris.Errorf("analyze: unknown category %q", c)
			}
			req.Categories = append(req.Categories, cat)
		}
	}
	if len(layers) > 0 {
		req.Layers = req.Layers[:0]
		for _, l := range layers {
			layer := model.Layer(strings.TrimSpace(l))
			if !layer.Valid() {
				return req, eris.Errorf("analyze: unknown layer %q", l)
			}
			req.Layers = append(req.Layers, layer)
		}
	}
	return req, nil
}

// parseCoords parses "lng,lat;lng,lat;...".
func parseCoords(s string) ([]model.LngLat, error) {
	var out []model.LngLat
	for i, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, eris.Errorf("analyze: vertex %d: want lng,lat, got %q", i, pair)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "analyze: vertex %d longitude", i)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "analyze: vertex %d latitude", i)
		}
		out = append(out, model.LngLat{lng, lat})
	}
	return out, nil
}
