// Package prompts provides prompt templates for use with the MCP server.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTallyPrompts registers the prompts that explain the counting workflow.
func RegisterTallyPrompts(s *server.MCPServer) {
	s.AddPrompt(mcp.NewPrompt("district_tally",
		mcp.WithPromptDescription("Instructions for counting POIs per district with the shape tools"),
	), TallyPromptHandler)

	s.AddPrompt(mcp.NewPrompt("district_tally_examples",
		mcp.WithPromptDescription("Examples of drawing, counting and exporting district statistics"),
	), TallyExamplesHandler)
}

// TallyPromptHandler returns the main prompt for the counting workflow
func TallyPromptHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	systemPrompt := `You have access to tools that annotate a map with shapes and count OpenStreetMap POIs inside them.
The usual workflow is:

1. Use geocode_place to find the area, then add_polygon or add_marker for each area of interest.
   Alternatively use import_districts with a bounding box to add official district boundaries.
2. Give every shape a district, either when adding it or later with assign_district.
3. Run count_all (or count_pois for a single shape) with the categories you need.
4. Read district_stats, or export_stats to produce a csv, xlsx, json or geojson file.

COUNTING RULES:
- A POI inside several shapes of the same district is counted once for that district.
- Re-counting a shape replaces its earlier counts; a failed count keeps them.
- Shapes without a district are reported under "unassigned".

ERROR HANDLING GUIDELINES:
1. Read the Guidance line of an error before retrying
2. On Overpass rate limits wait a minute, then count fewer shapes at once
3. On timeouts count fewer categories or split large polygons
4. Use list_shapes to check shape ids before counting or assigning`

	return mcp.NewGetPromptResult(
		"District Tally Workflow",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(
				mcp.RoleAssistant,
				mcp.NewTextContent(systemPrompt),
			),
		},
	), nil
}

// TallyExamplesHandler returns worked examples of the workflow
func TallyExamplesHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	examplesPrompt := `EXAMPLES OF EFFECTIVE TOOL USAGE:

User: "How many cafes and bars are there in each district of Brno?"
AI: *uses geocode_place with "Brno, Czech Republic" to get its bounding box*
AI: *uses import_districts with that bounding box and admin_level 9*
AI: *uses count_all with categories ["cafe", "bar"]*
AI: *uses district_stats and summarises the table*

User: "Count the restaurants within 300 m of the main station and put it in the centre district."
AI: *uses geocode_place with "Brno hlavní nádraží"*
AI: *uses add_marker with the coordinates, radius_m 300 and district "centre"*
AI: *uses count_pois with the new shape id and categories ["restaurant"]*

User: "Give me that as a spreadsheet."
AI: *uses export_stats with format "xlsx" and an output_path*`

	return mcp.NewGetPromptResult(
		"District Tally Examples",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(
				mcp.RoleAssistant,
				mcp.NewTextContent(examplesPrompt),
			),
		},
	), nil
}
