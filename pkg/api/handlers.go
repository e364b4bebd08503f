package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/export"
	"github.com/NERVsystems/osmtally/pkg/geo"
	"github.com/NERVsystems/osmtally/pkg/tally"
)

var errBadRequest = errors.New("bad request")

// defaultAdminLevel is the usual city-district level in Central Europe.
const defaultAdminLevel = 9

type shapeRequest struct {
	Kind         string         `json:"kind"`
	Label        string         `json:"label"`
	District     string         `json:"district"`
	Vertices     []geo.Location `json:"vertices"`
	Center       *geo.Location  `json:"center"`
	RadiusMeters float64        `json:"radius_m"`
}

type updateRequest struct {
	Label    *string `json:"label"`
	District *string `json:"district"`
}

type countRequest struct {
	Categories []string `json:"categories"`
	ShapeIDs   []string `json:"shape_ids"`
}

type countAllResponse struct {
	Results []tally.ShapeResult `json:"results"`
	Errors  []string            `json:"errors,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "shapes": h.ws.Shapes.Len()})
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ws.Categories(categoriesParam(r)))
}

func (h *Handler) handleListShapes(w http.ResponseWriter, r *http.Request) {
	data, err := h.ws.FeatureCollection().MarshalJSON()
	if err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}

func (h *Handler) handleGetShape(w http.ResponseWriter, r *http.Request) {
	sh, err := h.ws.Shapes.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, sh)
}

func (h *Handler) handleAddShape(w http.ResponseWriter, r *http.Request) {
	var req shapeRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}
	kind := annotation.Kind(strings.ToLower(req.Kind))
	if kind == "" {
		kind = annotation.KindPolygon
		if req.Center != nil {
			kind = annotation.KindMarker
		}
	}

	var (
		sh  annotation.Shape
		err error
	)
	switch kind {
	case annotation.KindPolygon:
		sh, err = h.ws.Shapes.AddPolygon(r.Context(), req.Label, req.District, req.Vertices)
	case annotation.KindMarker:
		if req.Center == nil {
			err = fmt.Errorf("%w: marker needs a center", annotation.ErrInvalidShape)
			break
		}
		sh, err = h.ws.Shapes.AddMarker(r.Context(), req.Label, req.District, *req.Center, req.RadiusMeters)
	default:
		err = fmt.Errorf("%w: unknown kind %q", annotation.ErrInvalidShape, req.Kind)
	}
	if err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, sh)
}

func (h *Handler) handleImportShapes(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err), http.StatusBadRequest)
		return
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: not a GeoJSON FeatureCollection: %v", errBadRequest, err), http.StatusBadRequest)
		return
	}
	added, err := h.ws.Shapes.Import(r.Context(), fc)
	if err != nil && len(added) > 0 {
		h.logger.Error("import stopped part way", "added", len(added), "error", err)
		writeJSON(w, http.StatusInternalServerError, struct {
			errorBody
			Added []annotation.Shape `json:"added"`
		}{errorBody{Error: err.Error(), Code: codeFor(http.StatusInternalServerError)}, added})
		return
	}
	if err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"added": added})
}

func (h *Handler) handleUpdateShape(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}
	sh, err := h.ws.Shapes.Update(r.Context(), chi.URLParam(r, "id"), req.Label, req.District)
	if err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, sh)
}

func (h *Handler) handleDeleteShape(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.RemoveShape(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearShapes(w http.ResponseWriter, r *http.Request) {
	removed, err := h.ws.ClearShapes(r.Context())
	if err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

func (h *Handler) handleCountShape(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}
	cats := req.Categories
	if len(cats) == 0 {
		cats = categoriesParam(r)
	}
	res, err := h.ws.CountShape(r.Context(), chi.URLParam(r, "id"), cats)
	if err != nil {
		h.writeError(w, r, err, http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCountAll(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}
	cats := req.Categories
	if len(cats) == 0 {
		cats = categoriesParam(r)
	}
	results, err := h.ws.CountAll(r.Context(), req.ShapeIDs, cats)
	if err != nil && len(results) == 0 {
		h.writeError(w, r, err, http.StatusBadGateway)
		return
	}
	resp := countAllResponse{Results: results}
	if err != nil {
		resp.Errors = splitErrors(err)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ws.Counter.Results())
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ws.Stats(categoriesParam(r)))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}
	var buf bytes.Buffer
	if err := h.ws.Export(&buf, format, categoriesParam(r)); err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(format, h.now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.writeError(w, r, fmt.Errorf("%w: missing q", errBadRequest), http.StatusBadRequest)
		return
	}
	place, err := h.ws.Geocode(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err, http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, place)
}

func (h *Handler) handleListBoundaries(w http.ResponseWriter, r *http.Request) {
	bb, level, err := boundaryParams(r)
	if err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}
	boundaries, err := h.ws.Boundaries(r.Context(), bb, level)
	if err != nil {
		h.writeError(w, r, err, http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, boundaries)
}

func (h *Handler) handleImportBoundaries(w http.ResponseWriter, r *http.Request) {
	bb, level, err := boundaryParams(r)
	if err != nil {
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	}
	added, err := h.ws.ImportBoundaries(r.Context(), bb, level)
	if err != nil {
		h.writeError(w, r, err, http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"added": added})
}

// decodeBody reads a JSON body into v. With optional set, an empty body is
// accepted and leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// categoriesParam splits ?categories=a,b.
func categoriesParam(r *http.Request) []string {
	raw := r.URL.Query().Get("categories")
	if raw == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// boundaryParams reads ?bbox=minLat,minLon,maxLat,maxLon&level=N.
func boundaryParams(r *http.Request) (geo.BoundingBox, int, error) {
	parts := strings.Split(r.URL.Query().Get("bbox"), ",")
	if len(parts) != 4 {
		return geo.BoundingBox{}, 0, fmt.Errorf("%w: bbox must be minLat,minLon,maxLat,maxLon", errBadRequest)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BoundingBox{}, 0, fmt.Errorf("%w: bbox value %q: %v", errBadRequest, p, err)
		}
		vals[i] = v
	}
	bb := geo.BoundingBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}

	level := defaultAdminLevel
	if raw := r.URL.Query().Get("level"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return geo.BoundingBox{}, 0, fmt.Errorf("%w: level %q: %v", errBadRequest, raw, err)
		}
		level = n
	}
	return bb, level, nil
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
