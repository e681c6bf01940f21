// Package dataset ties the store, regridder, and cache together: it opens the
// configured reanalysis dataset, loads the native scattered-sample variables,
// and serves regridded lat-lon fields to the dashboard.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/arcfield/eraview/internal/cache"
	"github.com/arcfield/eraview/internal/store/zarr"
	"github.com/arcfield/eraview/pkg/config"
	"github.com/arcfield/eraview/pkg/grid"
	"github.com/arcfield/eraview/pkg/regrid"
)

const (
	defaultLatVar   = "latitude"
	defaultLonVar   = "longitude"
	defaultStepDeg  = 1.0
	defaultBaseYear = 1940
)

// ErrUnknownVariable reports a request for a variable the dataset does not carry.
var ErrUnknownVariable = errors.New("dataset: unknown variable")

// VariableMeta describes one servable variable.
type VariableMeta struct {
	Name  string     `json:"name"`
	Units string     `json:"units,omitempty"`
	Stats grid.Stats `json:"stats"`
}

// Meta describes the opened dataset for the dashboard.
type Meta struct {
	Name      string         `json:"name"`
	Variables []VariableMeta `json:"variables"`
	TimeSteps int            `json:"time_steps"`
	BaseYear  int            `json:"base_year"`
	Lats      []float64      `json:"lats"`
	Lons      []float64      `json:"lons"`
}

type variable struct {
	arr   *grid.DataArray
	units string
	stats grid.Stats
}

// Service owns one opened dataset and its regridding machinery.
type Service struct {
	cfg      config.DatasetData
	target   *grid.RegularGrid
	rg       *regrid.Regridder
	workers  int
	cache    *cache.Cache // nil when caching is disabled
	logger   *zap.SugaredLogger
	vars     map[string]*variable
	varOrder []string
	steps    int

	mu sync.Mutex // serializes regrid of the same field on concurrent requests
}

// New opens the configured store, reads the sample coordinates, triangulates
// them, and loads every configured variable into memory. The annual-means
// datasets this serves are small enough to hold resident, which is also what
// keeps the slider responsive.
func New(ctx context.Context, provider config.ConfigProvider, fieldCache *cache.Cache, logger *zap.SugaredLogger) (*Service, error) {
	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %v", err)
	}
	cfg := cfgData.Dataset

	store, err := zarr.Open(ctx, cfg.StoreURL, logger)
	if err != nil {
		return nil, fmt.Errorf("opening dataset store: %v", err)
	}

	latVar, lonVar := cfg.LatVar, cfg.LonVar
	if latVar == "" {
		latVar = defaultLatVar
	}
	if lonVar == "" {
		lonVar = defaultLonVar
	}

	lats, err := readCoord(ctx, store, latVar)
	if err != nil {
		return nil, err
	}
	lons, err := readCoord(ctx, store, lonVar)
	if err != nil {
		return nil, err
	}
	if len(lats) != len(lons) {
		return nil, fmt.Errorf("coordinate arrays disagree: %d latitudes, %d longitudes", len(lats), len(lons))
	}

	logger.Infof("triangulating %d source samples", len(lats))
	rg, err := regrid.NewRegridder(lats, lons)
	if err != nil {
		return nil, fmt.Errorf("building regridder: %v", err)
	}

	step := cfgData.Regrid.StepDegrees
	if step == 0 {
		step = defaultStepDeg
	}
	target, err := grid.NewRegularGrid(step)
	if err != nil {
		return nil, fmt.Errorf("building target grid: %v", err)
	}

	s := &Service{
		cfg:     cfg,
		target:  target,
		rg:      rg,
		workers: cfgData.Regrid.Workers,
		cache:   fieldCache,
		logger:  logger,
		vars:    make(map[string]*variable),
	}

	for _, name := range cfg.Variables {
		if err := s.loadVariable(ctx, store, name); err != nil {
			return nil, err
		}
	}

	logger.Infof("dataset %s ready: %d variables, %d time steps, target grid %dx%d",
		s.name(), len(s.varOrder), s.steps, len(target.Lats), len(target.Lons))
	return s, nil
}

func (s *Service) name() string {
	if s.cfg.Name != "" {
		return s.cfg.Name
	}
	return s.cfg.StoreURL
}

// loadVariable reads one native variable and, when configured, derives its
// anomaly-from-first-step companion.
func (s *Service) loadVariable(ctx context.Context, store *zarr.Store, name string) error {
	arr, err := store.Array(ctx, name)
	if err != nil {
		return fmt.Errorf("opening variable %s: %v", name, err)
	}
	meta := arr.Meta()
	if len(meta.Shape) != 2 {
		return fmt.Errorf("variable %s: expected time x samples, got %d dims", name, len(meta.Shape))
	}
	if meta.Shape[1] != s.rg.NumSamples() {
		return fmt.Errorf("variable %s has %d samples, coordinates have %d", name, meta.Shape[1], s.rg.NumSamples())
	}

	s.logger.Infof("loading variable %s (%d time steps x %d samples)", name, meta.Shape[0], meta.Shape[1])
	values, err := arr.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading variable %s: %v", name, err)
	}

	da, err := grid.NewDataArray(name, []string{"time", "values"}, meta.Shape, values)
	if err != nil {
		return err
	}
	da.Attrs["units"] = arr.Attr("units")

	if s.steps == 0 {
		s.steps = meta.Shape[0]
	} else if s.steps != meta.Shape[0] {
		return fmt.Errorf("variable %s has %d time steps, dataset has %d", name, meta.Shape[0], s.steps)
	}

	s.addVariable(da)

	if s.cfg.Anomaly {
		anom, err := da.AnomalyFromFirst()
		if err != nil {
			return fmt.Errorf("deriving anomaly for %s: %v", name, err)
		}
		s.addVariable(anom)
	}
	return nil
}

func (s *Service) addVariable(da *grid.DataArray) {
	s.vars[da.Name] = &variable{
		arr: da,
		// Color limits come from the whole time range so the scale holds
		// steady while the slider moves.
		stats: grid.FieldStats(da.Values),
		units: da.Attrs["units"],
	}
	s.varOrder = append(s.varOrder, da.Name)
}

func readCoord(ctx context.Context, store *zarr.Store, name string) ([]float64, error) {
	arr, err := store.Array(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("opening coordinate array %s: %v", name, err)
	}
	if len(arr.Meta().Shape) != 1 {
		return nil, fmt.Errorf("coordinate array %s: expected 1 dim, got %d", name, len(arr.Meta().Shape))
	}
	vals, err := arr.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading coordinate array %s: %v", name, err)
	}
	return vals, nil
}

// Meta describes the dataset for the dashboard.
func (s *Service) Meta() Meta {
	m := Meta{
		Name:      s.name(),
		TimeSteps: s.steps,
		BaseYear:  s.cfg.BaseYear,
		Lats:      s.target.Lats,
		Lons:      s.target.Lons,
	}
	if m.BaseYear == 0 {
		m.BaseYear = defaultBaseYear
	}
	for _, name := range s.varOrder {
		v := s.vars[name]
		m.Variables = append(m.Variables, VariableMeta{Name: name, Units: v.units, Stats: v.stats})
	}
	return m
}

// Field returns one regridded time step of a variable, row-major lat-by-lon,
// consulting the cache first.
func (s *Service) Field(ctx context.Context, name string, timeIndex int) ([]float64, int, int, error) {
	v, ok := s.vars[name]
	if !ok {
		return nil, 0, 0, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	if timeIndex < 0 || timeIndex >= s.steps {
		return nil, 0, 0, fmt.Errorf("time index %d out of range [0,%d)", timeIndex, s.steps)
	}

	nlat, nlon := len(s.target.Lats), len(s.target.Lons)
	sig := s.target.Signature()

	if s.cache != nil {
		vals, cLat, cLon, err := s.cache.Get(ctx, s.name(), name, timeIndex, sig)
		if err == nil && cLat == nlat && cLon == nlon {
			return vals, nlat, nlon, nil
		}
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			s.logger.Warnf("cache read failed, regridding instead: %v", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	native, err := v.arr.TimeSlice(timeIndex)
	if err != nil {
		return nil, 0, 0, err
	}
	vals, err := s.rg.Interpolate(native, s.target, s.workers)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("regridding %s[%d]: %v", name, timeIndex, err)
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, s.name(), name, timeIndex, sig, nlat, nlon, vals); err != nil {
			s.logger.Warnf("cache write failed: %v", err)
		}
	}
	return vals, nlat, nlon, nil
}
