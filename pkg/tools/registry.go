package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/osmtally/pkg/workspace"
)

// Registry holds all MCP tool registrations for one workspace.
type Registry struct {
	ws     *workspace.Workspace
	logger *slog.Logger
}

// NewRegistry creates a new MCP tool registry over ws.
func NewRegistry(ws *workspace.Workspace, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		ws:     ws,
		logger: logger,
	}
}

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// GetToolDefinitions returns all MCP tool definitions.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		// Shape Tools
		{
			Name:        "add_polygon",
			Description: "Draw a polygon on the map",
			Tool:        AddPolygonTool(),
			Handler:     r.HandleAddPolygon,
		},
		{
			Name:        "add_marker",
			Description: "Drop a marker with a search radius",
			Tool:        AddMarkerTool(),
			Handler:     r.HandleAddMarker,
		},
		{
			Name:        "list_shapes",
			Description: "List every shape with its district and counts",
			Tool:        ListShapesTool(),
			Handler:     r.HandleListShapes,
		},
		{
			Name:        "remove_shape",
			Description: "Remove one shape, or every shape",
			Tool:        RemoveShapeTool(),
			Handler:     r.HandleRemoveShape,
		},
		{
			Name:        "assign_district",
			Description: "Assign a shape to a district",
			Tool:        AssignDistrictTool(),
			Handler:     r.HandleAssignDistrict,
		},
		{
			Name:        "import_shapes",
			Description: "Import shapes from a GeoJSON FeatureCollection",
			Tool:        ImportShapesTool(),
			Handler:     r.HandleImportShapes,
		},

		// Counting Tools
		{
			Name:        "count_pois",
			Description: "Count points of interest inside one shape",
			Tool:        CountPOIsTool(),
			Handler:     r.HandleCountPOIs,
		},
		{
			Name:        "count_all",
			Description: "Count points of interest inside every shape",
			Tool:        CountAllTool(),
			Handler:     r.HandleCountAll,
		},
		{
			Name:        "district_stats",
			Description: "Aggregate counts per district without double counting",
			Tool:        DistrictStatsTool(),
			Handler:     r.HandleDistrictStats,
		},
		{
			Name:        "export_stats",
			Description: "Export district statistics as csv, xlsx, json or geojson",
			Tool:        ExportStatsTool(),
			Handler:     r.HandleExportStats,
		},
		{
			Name:        "list_categories",
			Description: "List the POI categories that can be counted",
			Tool:        ListCategoriesTool(),
			Handler:     r.HandleListCategories,
		},

		// Lookup Tools
		{
			Name:        "geocode_place",
			Description: "Find the coordinates of a place to centre the map on",
			Tool:        GeocodePlaceTool(),
			Handler:     r.HandleGeocodePlace,
		},
		{
			Name:        "list_districts",
			Description: "List administrative districts inside a bounding box",
			Tool:        ListDistrictsTool(),
			Handler:     r.HandleListDistricts,
		},
		{
			Name:        "import_districts",
			Description: "Add administrative districts inside a bounding box as polygons",
			Tool:        ImportDistrictsTool(),
			Handler:     r.HandleImportDistricts,
		},
	}
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, def.Handler)
	}
}
