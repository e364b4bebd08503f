// Package tools exposes the annotation workspace as MCP tools.
package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/export"
	"github.com/NERVsystems/osmtally/pkg/osm"
)

// APIError represents an error that occurred while serving a tool call,
// with information to help users recover.
type APIError struct {
	Service     string // The service name (e.g., "Nominatim", "Overpass")
	StatusCode  int    // HTTP-style status code
	Message     string // Error message
	Recoverable bool   // Whether the error can be recovered from
	Guidance    string // Guidance for users on how to recover
}

// Error implements the error interface and provides a formatted error message.
func (e *APIError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s error (%d): %s. %s", e.Service, e.StatusCode, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s error (%d): %s", e.Service, e.StatusCode, e.Message)
}

// Common error guidance messages
const (
	// Nominatim guidance
	GuidanceNominatimAddressFormat = "Try using a more standard address format or provide city and country."
	GuidanceNominatimRateLimit     = "Please try again in a few seconds."
	GuidanceNominatimGeneral       = "Check your place name and try again."

	// Overpass guidance
	GuidanceOverpassTimeout   = "Consider counting fewer categories at once or splitting large polygons."
	GuidanceOverpassRateLimit = "The Overpass API is currently experiencing high load. Please try again in a minute."
	GuidanceOverpassGeneral   = "Try a smaller shape or fewer categories."

	// Workspace guidance
	GuidanceUnknownShape  = "Call list_shapes to see the current shape ids."
	GuidanceInvalidShape  = "Polygons need at least three distinct vertices; markers need a valid centre and a radius up to 5000 m."
	GuidanceExportFormats = "Supported formats are csv, xlsx, json and geojson."

	// Generic guidance
	GuidanceGeneral = "Please try again later or modify your request parameters."
)

// NewAPIError creates a new APIError with appropriate guidance based on status code.
func NewAPIError(service string, statusCode int, message, guidance string) *APIError {
	if guidance == "" {
		switch statusCode {
		case http.StatusTooManyRequests:
			guidance = "Rate limit exceeded. Please try again in a few moments."
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			guidance = "The request timed out. Try a smaller shape or fewer categories."
		case http.StatusBadRequest:
			guidance = "The request was invalid. Check your parameters and try again."
		case http.StatusServiceUnavailable:
			guidance = "The service is temporarily unavailable. Please try again later."
		default:
			guidance = GuidanceGeneral
		}
	}

	return &APIError{
		Service:     service,
		StatusCode:  statusCode,
		Message:     message,
		Recoverable: statusCode != http.StatusBadRequest,
		Guidance:    guidance,
	}
}

// ErrorWithGuidance returns a properly formatted error response with user guidance.
func ErrorWithGuidance(err *APIError) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s\n\nGuidance: %s", err.Message, err.Guidance)
	return mcp.NewToolResultError(errorText)
}

// ValidationError creates an error for a bad tool argument.
func ValidationError(message string) *APIError {
	return &APIError{
		Service:     "Validation",
		StatusCode:  http.StatusBadRequest,
		Message:     message,
		Recoverable: true,
		Guidance:    "Please correct the parameters and try again.",
	}
}

// AsAPIError classifies a workspace or upstream error.
func AsAPIError(err error) *APIError {
	var se *osm.StatusError
	switch {
	case errors.Is(err, annotation.ErrNotFound):
		return NewAPIError("Workspace", http.StatusNotFound, err.Error(), GuidanceUnknownShape)
	case errors.Is(err, annotation.ErrInvalidShape):
		return NewAPIError("Validation", http.StatusBadRequest, err.Error(), GuidanceInvalidShape)
	case errors.Is(err, export.ErrUnknownFormat):
		return NewAPIError("Validation", http.StatusBadRequest, err.Error(), GuidanceExportFormats)
	case errors.Is(err, osm.ErrInvalidRequest):
		return NewAPIError("Validation", http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, osm.ErrNoResults):
		return NewAPIError("Nominatim", http.StatusNotFound, err.Error(), GuidanceNominatimAddressFormat)
	case errors.As(err, &se):
		return upstreamError(se, err)
	case errors.Is(err, osm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return NewAPIError("Overpass", http.StatusGatewayTimeout, err.Error(), GuidanceOverpassTimeout)
	default:
		return NewAPIError("Workspace", http.StatusInternalServerError, err.Error(), "")
	}
}

func upstreamError(se *osm.StatusError, err error) *APIError {
	if se.Service == osm.ServiceNominatim {
		guidance := GuidanceNominatimGeneral
		if se.StatusCode == http.StatusTooManyRequests {
			guidance = GuidanceNominatimRateLimit
		}
		return NewAPIError("Nominatim", se.StatusCode, err.Error(), guidance)
	}
	guidance := GuidanceOverpassGeneral
	switch se.StatusCode {
	case http.StatusTooManyRequests:
		guidance = GuidanceOverpassRateLimit
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		guidance = GuidanceOverpassTimeout
	}
	return NewAPIError("Overpass", se.StatusCode, err.Error(), guidance)
}

// errorResult turns err into a tool error result.
func errorResult(err error) *mcp.CallToolResult {
	return ErrorWithGuidance(AsAPIError(err))
}
