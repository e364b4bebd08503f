package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb/geojson"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/geo"
)

// AddPolygonTool returns a tool definition for drawing polygons
func AddPolygonTool() mcp.Tool {
	return mcp.NewTool("add_polygon",
		mcp.WithDescription("Draw a polygon on the map. POIs inside it can then be counted with count_pois."),
		mcp.WithArray("vertices",
			mcp.Required(),
			mcp.Description("Outer ring as an array of {latitude, longitude} objects, at least three"),
		),
		mcp.WithString("label",
			mcp.Description("Optional name shown on the map"),
		),
		mcp.WithString("district",
			mcp.Description("District the polygon belongs to; defaults to unassigned"),
		),
	)
}

// HandleAddPolygon adds a polygon to the workspace
func (r *Registry) HandleAddPolygon(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "add_polygon")

	var vertices []geo.Location
	if err := decodeArg(req, "vertices", &vertices); err != nil {
		return ErrorWithGuidance(ValidationError(err.Error())), nil
	}
	sh, err := r.ws.Shapes.AddPolygon(ctx,
		mcp.ParseString(req, "label", ""),
		mcp.ParseString(req, "district", ""),
		vertices)
	if err != nil {
		logger.Debug("rejected polygon", "error", err)
		return errorResult(err), nil
	}
	return jsonResult(sh)
}

// AddMarkerTool returns a tool definition for dropping markers
func AddMarkerTool() mcp.Tool {
	return mcp.NewTool("add_marker",
		mcp.WithDescription("Drop a marker. POIs within its radius can then be counted with count_pois."),
		mcp.WithNumber("latitude",
			mcp.Required(),
			mcp.Description("The latitude coordinate of the marker"),
		),
		mcp.WithNumber("longitude",
			mcp.Required(),
			mcp.Description("The longitude coordinate of the marker"),
		),
		mcp.WithNumber("radius_m",
			mcp.Description("Search radius in meters (max 5000)"),
			mcp.DefaultNumber(annotation.DefaultMarkerRadius),
		),
		mcp.WithString("label",
			mcp.Description("Optional name shown on the map"),
		),
		mcp.WithString("district",
			mcp.Description("District the marker belongs to; defaults to unassigned"),
		),
	)
}

// HandleAddMarker adds a marker to the workspace
func (r *Registry) HandleAddMarker(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := requireArgs(req, "latitude", "longitude"); err != nil {
		return ErrorWithGuidance(ValidationError(err.Error())), nil
	}
	center := geo.Location{
		Latitude:  mcp.ParseFloat64(req, "latitude", 0),
		Longitude: mcp.ParseFloat64(req, "longitude", 0),
	}
	sh, err := r.ws.Shapes.AddMarker(ctx,
		mcp.ParseString(req, "label", ""),
		mcp.ParseString(req, "district", ""),
		center,
		mcp.ParseFloat64(req, "radius_m", annotation.DefaultMarkerRadius))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sh)
}

// ListShapesTool returns a tool definition for listing shapes
func ListShapesTool() mcp.Tool {
	return mcp.NewTool("list_shapes",
		mcp.WithDescription("List every shape with its district and, once counted, its POI counts"),
		mcp.WithString("district",
			mcp.Description("Only list shapes of this district"),
		),
	)
}

// HandleListShapes lists the shapes of the workspace
func (r *Registry) HandleListShapes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	district := strings.TrimSpace(mcp.ParseString(req, "district", ""))
	results := r.ws.Counter.Results()

	output := ListShapesOutput{
		Shapes:    []ShapeOutput{},
		Districts: r.ws.Shapes.Districts(),
	}
	for _, sh := range r.ws.Shapes.List() {
		if district != "" && sh.District != annotation.NormalizeDistrict(district) {
			continue
		}
		out := ShapeOutput{Shape: sh}
		if res, ok := results[sh.ID]; ok {
			total := res.Total()
			out.Total = &total
			out.Counts = res.Counts
		}
		output.Shapes = append(output.Shapes, out)
	}
	return jsonResult(output)
}

// RemoveShapeTool returns a tool definition for removing shapes
func RemoveShapeTool() mcp.Tool {
	return mcp.NewTool("remove_shape",
		mcp.WithDescription("Remove a shape and its counts. Use id \"*\" to clear the map."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The id of the shape to remove, or * for all"),
		),
	)
}

// HandleRemoveShape removes one or every shape
func (r *Registry) HandleRemoveShape(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(mcp.ParseString(req, "id", ""))
	switch id {
	case "":
		return ErrorWithGuidance(ValidationError("id must not be empty")), nil
	case "*":
		removed, err := r.ws.ClearShapes(ctx)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(RemoveShapeOutput{Removed: removed})
	}
	if err := r.ws.RemoveShape(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(RemoveShapeOutput{Removed: []string{id}})
}

// AssignDistrictTool returns a tool definition for assigning districts
func AssignDistrictTool() mcp.Tool {
	return mcp.NewTool("assign_district",
		mcp.WithDescription("Assign a shape to a district, optionally relabelling it"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The id of the shape"),
		),
		mcp.WithString("district",
			mcp.Required(),
			mcp.Description("The district name; empty means unassigned"),
		),
		mcp.WithString("label",
			mcp.Description("A new label for the shape"),
		),
	)
}

// HandleAssignDistrict moves a shape to a district
func (r *Registry) HandleAssignDistrict(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "id", "")
	district := mcp.ParseString(req, "district", "")
	var label *string
	if l := mcp.ParseString(req, "label", ""); l != "" {
		label = &l
	}
	sh, err := r.ws.Shapes.Update(ctx, id, label, &district)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sh)
}

// ImportShapesTool returns a tool definition for importing GeoJSON
func ImportShapesTool() mcp.Tool {
	return mcp.NewTool("import_shapes",
		mcp.WithDescription("Import points and polygons from a GeoJSON FeatureCollection. Properties label, district and radius_m are honoured."),
		mcp.WithString("geojson",
			mcp.Required(),
			mcp.Description("The FeatureCollection as a JSON string"),
		),
	)
}

// HandleImportShapes imports a FeatureCollection
func (r *Registry) HandleImportShapes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := mcp.ParseString(req, "geojson", "")
	if strings.TrimSpace(raw) == "" {
		return ErrorWithGuidance(ValidationError("geojson must not be empty")), nil
	}
	fc, err := geojson.UnmarshalFeatureCollection([]byte(raw))
	if err != nil {
		return ErrorWithGuidance(ValidationError("not a GeoJSON FeatureCollection: " + err.Error())), nil
	}
	added, err := r.ws.Shapes.Import(ctx, fc)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(ImportOutput{Added: added})
}
