package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmtally/pkg/export"
	"github.com/NERVsystems/osmtally/pkg/osm"
)

// categoriesOption is the shared categories argument.
func categoriesOption() mcp.ToolOption {
	return mcp.WithArray("categories",
		mcp.Description("Category names such as cafe, restaurant, bar, school; see list_categories. Defaults to the configured set."),
	)
}

// CountPOIsTool returns a tool definition for counting one shape
func CountPOIsTool() mcp.Tool {
	return mcp.NewTool("count_pois",
		mcp.WithDescription("Count points of interest per category inside one shape. Re-counting replaces the earlier result."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The id of the shape to count"),
		),
		categoriesOption(),
	)
}

// HandleCountPOIs counts the POIs of one shape
func (r *Registry) HandleCountPOIs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(mcp.ParseString(req, "id", ""))
	if id == "" {
		return ErrorWithGuidance(ValidationError("id must not be empty")), nil
	}
	res, err := r.ws.CountShape(ctx, id, stringList(req, "categories"))
	if err != nil {
		r.logger.Warn("count failed", "tool", "count_pois", "shape", id, "error", err)
		return errorResult(err), nil
	}
	return jsonResult(res)
}

// CountAllTool returns a tool definition for counting every shape
func CountAllTool() mcp.Tool {
	return mcp.NewTool("count_all",
		mcp.WithDescription("Count points of interest inside every shape, or the listed ones. Shapes that fail keep their earlier counts."),
		mcp.WithArray("ids",
			mcp.Description("Shape ids to count; all shapes when omitted"),
		),
		categoriesOption(),
	)
}

// HandleCountAll counts several shapes and reports partial failures
func (r *Registry) HandleCountAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	results, err := r.ws.CountAll(ctx, stringList(req, "ids"), stringList(req, "categories"))
	if err != nil && len(results) == 0 {
		return errorResult(err), nil
	}
	output := CountAllOutput{Results: results}
	if err != nil {
		output.Errors = splitErrors(err)
	}
	return jsonResult(output)
}

// DistrictStatsTool returns a tool definition for district statistics
func DistrictStatsTool() mcp.Tool {
	return mcp.NewTool("district_stats",
		mcp.WithDescription("Aggregate the counted shapes per district. A POI inside several shapes of one district is counted once."),
		categoriesOption(),
	)
}

// HandleDistrictStats aggregates results per district
func (r *Registry) HandleDistrictStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(r.ws.Stats(stringList(req, "categories")))
}

// ExportStatsTool returns a tool definition for exporting statistics
func ExportStatsTool() mcp.Tool {
	return mcp.NewTool("export_stats",
		mcp.WithDescription("Export the district statistics. Text formats are returned inline, xlsx as base64 unless output_path is given."),
		mcp.WithString("format",
			mcp.Description("csv, xlsx, json or geojson"),
			mcp.DefaultString(string(export.CSV)),
		),
		mcp.WithString("output_path",
			mcp.Description("Write the file to this directory or path instead of returning it"),
		),
		categoriesOption(),
	)
}

// HandleExportStats renders the statistics in the requested format
func (r *Registry) HandleExportStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := export.ParseFormat(mcp.ParseString(req, "format", string(export.CSV)))
	if err != nil {
		return errorResult(err), nil
	}
	var buf bytes.Buffer
	if err := r.ws.Export(&buf, format, stringList(req, "categories")); err != nil {
		return errorResult(err), nil
	}
	output := ExportOutput{
		Format:   string(format),
		FileName: export.FileName(format, time.Now()),
		Bytes:    buf.Len(),
	}

	if path := strings.TrimSpace(mcp.ParseString(req, "output_path", "")); path != "" {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, output.FileName)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			r.logger.Error("failed to write export", "path", path, "error", err)
			return ErrorResponse(fmt.Sprintf("Failed to write %s: %v", path, err)), nil
		}
		output.Path = path
		return jsonResult(output)
	}

	if format == export.XLSX {
		output.Encoding = "base64"
		output.Content = base64.StdEncoding.EncodeToString(buf.Bytes())
	} else {
		output.Content = buf.String()
	}
	return jsonResult(output)
}

// ListCategoriesTool returns a tool definition for listing categories
func ListCategoriesTool() mcp.Tool {
	return mcp.NewTool("list_categories",
		mcp.WithDescription("List the built-in POI categories with their OSM tag filters"),
	)
}

// HandleListCategories lists the built-in categories
func (r *Registry) HandleListCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(CategoriesOutput{
		Categories: osm.ResolveCategories(nil),
		Defaults:   osm.CategoryNames(r.ws.Categories(nil)),
	})
}

// splitErrors flattens a joined error into its messages.
func splitErrors(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
