package tools

import (
	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/osm"
	"github.com/NERVsystems/osmtally/pkg/tally"
)

// ShapeOutput is a shape with its counted total, if any.
type ShapeOutput struct {
	annotation.Shape
	Total  *int           `json:"total,omitempty"`
	Counts map[string]int `json:"counts,omitempty"`
}

// ListShapesOutput defines the output format for list_shapes
type ListShapesOutput struct {
	Shapes    []ShapeOutput `json:"shapes"`
	Districts []string      `json:"districts"`
}

// RemoveShapeOutput defines the output format for remove_shape
type RemoveShapeOutput struct {
	Removed []string `json:"removed"`
}

// CountAllOutput defines the output format for count_all
type CountAllOutput struct {
	Results []tally.ShapeResult `json:"results"`
	Errors  []string            `json:"errors,omitempty"`
}

// ExportOutput defines the output format for export_stats. Content holds
// the file inline, base64 encoded for xlsx; Path is set instead when the
// file was written to disk.
type ExportOutput struct {
	Format   string `json:"format"`
	FileName string `json:"file_name"`
	Bytes    int    `json:"bytes"`
	Encoding string `json:"encoding,omitempty"`
	Content  string `json:"content,omitempty"`
	Path     string `json:"path,omitempty"`
}

// CategoriesOutput defines the output format for list_categories
type CategoriesOutput struct {
	Categories []osm.Category `json:"categories"`
	Defaults   []string       `json:"defaults"`
}

// ImportOutput defines the output format for tools that add several shapes
type ImportOutput struct {
	Added []annotation.Shape `json:"added"`
}
