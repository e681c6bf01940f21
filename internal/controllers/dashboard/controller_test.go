package dashboard

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/arcfield/eraview/internal/cache"
	"github.com/arcfield/eraview/internal/dataset"
	"github.com/arcfield/eraview/pkg/config"
)

type testProvider struct {
	cfg config.ConfigData
}

func (p *testProvider) LoadConfig() (*config.ConfigData, error)  { return &p.cfg, nil }
func (p *testProvider) GetDataset() (*config.DatasetData, error) { return &p.cfg.Dataset, nil }
func (p *testProvider) GetControllers() ([]config.ControllerData, error) {
	return p.cfg.Controllers, nil
}
func (p *testProvider) Close() error { return nil }

// newTestController opens a dataset over a small on-disk store and wraps it
// in a controller without starting the listener.
func newTestController(t *testing.T, dc config.DashboardData) *Controller {
	t.Helper()
	dir := t.TempDir()

	var lats, lons []float64
	for lat := -80.0; lat <= 80.0; lat += 20 {
		for lon := 0.0; lon < 360.0; lon += 20 {
			lats = append(lats, lat)
			lons = append(lons, lon)
		}
	}
	n := len(lats)
	values := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		values[i] = 280
		values[n+i] = 283
	}

	encode := func(vals []float64) []byte {
		buf := make([]byte, 8*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		return buf
	}
	writeObject := func(key string, body []byte) {
		path := filepath.Join(dir, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	coordMeta, _ := json.Marshal(map[string]interface{}{
		"shape": []int{n}, "chunks": []int{n}, "dtype": "<f8",
		"fill_value": "NaN", "order": "C", "zarr_format": 2,
	})
	dataMeta, _ := json.Marshal(map[string]interface{}{
		"shape": []int{2, n}, "chunks": []int{2, n}, "dtype": "<f8",
		"fill_value": "NaN", "order": "C", "zarr_format": 2,
	})
	writeObject("latitude/.zarray", coordMeta)
	writeObject("longitude/.zarray", coordMeta)
	writeObject("VAR_2T/.zarray", dataMeta)
	writeObject("latitude/0", encode(lats))
	writeObject("longitude/0", encode(lons))
	writeObject("VAR_2T/0.0", encode(values))

	provider := &testProvider{cfg: config.ConfigData{
		Dataset: config.DatasetData{
			Name:      "test-era5",
			StoreURL:  dir,
			Variables: []string{"VAR_2T"},
		},
		Regrid: config.RegridData{StepDegrees: 30, Workers: 2},
	}}

	var fieldCache *cache.Cache
	svc, err := dataset.New(context.Background(), provider, fieldCache, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	ctrl, err := NewController(context.Background(), &wg, dc, svc, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	return ctrl
}

func get(t *testing.T, ctrl *Controller, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestGetMeta(t *testing.T) {
	ctrl := newTestController(t, config.DashboardData{PageTitle: "Test Dashboard"})

	rec := get(t, ctrl, "/api/meta")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var resp struct {
		Name      string `json:"name"`
		TimeSteps int    `json:"time_steps"`
		PageTitle string `json:"page_title"`
		Variables []struct {
			Name string `json:"name"`
		} `json:"variables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Name != "test-era5" || resp.TimeSteps != 2 {
		t.Errorf("meta = %+v", resp)
	}
	if resp.PageTitle != "Test Dashboard" {
		t.Errorf("page title = %q", resp.PageTitle)
	}
	if len(resp.Variables) != 1 || resp.Variables[0].Name != "VAR_2T" {
		t.Errorf("variables = %+v", resp.Variables)
	}
}

func TestGetField(t *testing.T) {
	ctrl := newTestController(t, config.DashboardData{})

	rec := get(t, ctrl, "/api/field/VAR_2T/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Variable string     `json:"variable"`
		Time     int        `json:"time"`
		NLat     int        `json:"nlat"`
		NLon     int        `json:"nlon"`
		Values   []*float64 `json:"values"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Variable != "VAR_2T" || resp.Time != 1 {
		t.Errorf("response = %+v", resp)
	}
	if resp.NLat != 6 || resp.NLon != 12 || len(resp.Values) != 72 {
		t.Fatalf("field shape %dx%d (%d values)", resp.NLat, resp.NLon, len(resp.Values))
	}
	for i, v := range resp.Values {
		if v == nil || math.Abs(*v-283) > 1e-9 {
			t.Fatalf("values[%d] = %v, want 283", i, v)
		}
	}
}

func TestGetFieldUnknownVariable(t *testing.T) {
	ctrl := newTestController(t, config.DashboardData{})

	rec := get(t, ctrl, "/api/field/VAR_MSL/0")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetFieldBadTime(t *testing.T) {
	ctrl := newTestController(t, config.DashboardData{})

	// The route only admits numeric time indexes.
	rec := get(t, ctrl, "/api/field/VAR_2T/abc")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 from the router", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	ctrl := newTestController(t, config.DashboardData{})

	rec := get(t, ctrl, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	ctrl := newTestController(t, config.DashboardData{})

	rec := get(t, ctrl, "/healthz")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec2 := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rec2, req)
	if got := rec2.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("request ID = %q, want caller's preserved", got)
	}
}

func TestCORS(t *testing.T) {
	ctrl := newTestController(t, config.DashboardData{EnableCORS: true})

	rec := get(t, ctrl, "/api/meta")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/meta", nil)
	rec2 := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec2.Code)
	}
}

func TestIndexServed(t *testing.T) {
	ctrl := newTestController(t, config.DashboardData{})

	rec := get(t, ctrl, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); len(body) == 0 {
		t.Error("empty index page")
	}
}
