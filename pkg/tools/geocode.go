package tools

import (
	"context"
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmtally/pkg/geo"
)

// defaultAdminLevel is the usual city-district level in Central Europe.
const defaultAdminLevel = 9

var (
	parensRe = regexp.MustCompile(`\(([^)]*)\)`)
	spacesRe = regexp.MustCompile(`\s+`)
)

// sanitizeAddress strips parenthesised text, which Nominatim matches poorly,
// and collapses whitespace. The removed text is returned separately.
func sanitizeAddress(address string) (string, string) {
	var inner []string
	for _, m := range parensRe.FindAllStringSubmatch(address, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			inner = append(inner, s)
		}
	}
	without := parensRe.ReplaceAllString(address, " ")
	without = strings.TrimSpace(spacesRe.ReplaceAllString(without, " "))
	return without, strings.Join(inner, " ")
}

// GeocodePlaceTool returns a tool definition for geocoding places
func GeocodePlaceTool() mcp.Tool {
	return mcp.NewTool("geocode_place",
		mcp.WithDescription("Find the coordinates and bounding box of a place, e.g. to choose where to draw"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The place name or address, ideally with city and country"),
		),
	)
}

// HandleGeocodePlace geocodes a place name
func (r *Registry) HandleGeocodePlace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "geocode_place")

	query, parens := sanitizeAddress(mcp.ParseString(req, "query", ""))
	if query == "" {
		query = parens
	}
	if query == "" {
		return ErrorWithGuidance(ValidationError("query must not be empty")), nil
	}

	place, err := r.ws.Geocode(ctx, query)
	if err != nil && parens != "" && query != parens {
		logger.Debug("retrying with parenthesised text", "query", parens)
		place, err = r.ws.Geocode(ctx, parens)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(place)
}

func bboxOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("min_lat", mcp.Required(), mcp.Description("Southern edge of the bounding box")),
		mcp.WithNumber("min_lon", mcp.Required(), mcp.Description("Western edge of the bounding box")),
		mcp.WithNumber("max_lat", mcp.Required(), mcp.Description("Northern edge of the bounding box")),
		mcp.WithNumber("max_lon", mcp.Required(), mcp.Description("Eastern edge of the bounding box")),
		mcp.WithNumber("admin_level",
			mcp.Description("OSM admin_level of the districts (2-11)"),
			mcp.DefaultNumber(defaultAdminLevel),
		),
	}
}

func parseBBox(req mcp.CallToolRequest) (geo.BoundingBox, int, error) {
	if err := requireArgs(req, "min_lat", "min_lon", "max_lat", "max_lon"); err != nil {
		return geo.BoundingBox{}, 0, err
	}
	bb := geo.BoundingBox{
		MinLat: mcp.ParseFloat64(req, "min_lat", 0),
		MinLon: mcp.ParseFloat64(req, "min_lon", 0),
		MaxLat: mcp.ParseFloat64(req, "max_lat", 0),
		MaxLon: mcp.ParseFloat64(req, "max_lon", 0),
	}
	return bb, int(mcp.ParseFloat64(req, "admin_level", defaultAdminLevel)), nil
}

// ListDistrictsTool returns a tool definition for listing districts
func ListDistrictsTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List administrative districts inside a bounding box"),
	}, bboxOptions()...)
	return mcp.NewTool("list_districts", opts...)
}

// HandleListDistricts lists administrative districts
func (r *Registry) HandleListDistricts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bb, level, err := parseBBox(req)
	if err != nil {
		return ErrorWithGuidance(ValidationError(err.Error())), nil
	}
	boundaries, err := r.ws.Boundaries(ctx, bb, level)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(boundaries)
}

// ImportDistrictsTool returns a tool definition for importing districts
func ImportDistrictsTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Add every administrative district inside a bounding box as a polygon assigned to that district"),
	}, bboxOptions()...)
	return mcp.NewTool("import_districts", opts...)
}

// HandleImportDistricts adds administrative districts as polygons
func (r *Registry) HandleImportDistricts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bb, level, err := parseBBox(req)
	if err != nil {
		return ErrorWithGuidance(ValidationError(err.Error())), nil
	}
	added, err := r.ws.ImportBoundaries(ctx, bb, level)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(ImportOutput{Added: added})
}
