package dashboard

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/arcfield/eraview/internal/dataset"
	"github.com/arcfield/eraview/internal/log"
)

// Handlers contains all HTTP handlers for the dashboard
type Handlers struct {
	controller *Controller
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{controller: ctrl}
}

// metaResponse is the /api/meta payload.
type metaResponse struct {
	dataset.Meta
	PageTitle string `json:"page_title"`
}

// fieldResponse is the /api/field payload. Values are row-major lat-by-lon;
// missing values (outside the source convex hull) are JSON null.
type fieldResponse struct {
	Variable string     `json:"variable"`
	Time     int        `json:"time"`
	NLat     int        `json:"nlat"`
	NLon     int        `json:"nlon"`
	Values   []*float64 `json:"values"`
}

// GetMeta serves dataset metadata: variables, stats, time range, mesh.
func (h *Handlers) GetMeta(w http.ResponseWriter, req *http.Request) {
	resp := metaResponse{
		Meta:      h.controller.Data.Meta(),
		PageTitle: h.controller.dashboard.PageTitle,
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetField serves one regridded time step of a variable.
func (h *Handlers) GetField(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	variable := vars["variable"]
	timeIndex, err := strconv.Atoi(vars["time"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time index")
		return
	}

	values, nlat, nlon, err := h.controller.Data.Field(req.Context(), variable, timeIndex)
	if err != nil {
		if errors.Is(err, dataset.ErrUnknownVariable) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Errorf("error serving field %s[%d]: %v", variable, timeIndex, err)
		writeError(w, http.StatusInternalServerError, "error building field")
		return
	}

	resp := fieldResponse{
		Variable: variable,
		Time:     timeIndex,
		NLat:     nlat,
		NLon:     nlon,
		Values:   nullable(values),
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHealth answers liveness probes.
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// nullable converts NaN entries to nil so the field marshals as valid JSON.
func nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if !math.IsNaN(values[i]) {
			out[i] = &values[i]
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
