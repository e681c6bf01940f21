// Package config defines the configuration model and its providers.
package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetDataset() (*DatasetData, error)
	GetControllers() ([]ControllerData, error)

	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Dataset     DatasetData      `json:"dataset"`
	Regrid      RegridData       `json:"regrid,omitempty"`
	Cache       *CacheData       `json:"cache,omitempty"`
	Controllers []ControllerData `json:"controllers,omitempty"`
	Registry    *RegistryData    `json:"registry,omitempty"`
}

// DatasetData describes the remote array store to open.
type DatasetData struct {
	Name      string   `json:"name"`
	StoreURL  string   `json:"store_url"`
	Variables []string `json:"variables"`
	// Names of the coordinate arrays carrying sample positions.
	LatVar string `json:"lat_var,omitempty"`
	LonVar string `json:"lon_var,omitempty"`
	// First calendar year of the time axis, for labeling the slider.
	BaseYear int `json:"base_year,omitempty"`
	// Derive an anomaly-from-first-step variable alongside each source one.
	Anomaly bool `json:"anomaly,omitempty"`
}

// RegridData controls the target mesh and evaluation parallelism.
type RegridData struct {
	StepDegrees float64 `json:"step_degrees,omitempty"`
	Workers     int     `json:"workers,omitempty"`
}

// CacheData configures the regridded-field cache.
type CacheData struct {
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// ControllerData holds the configuration for controller backends
type ControllerData struct {
	Type      string         `json:"type,omitempty"`
	Dashboard *DashboardData `json:"dashboard,omitempty"`
}

// DashboardData configures the HTTP dashboard controller.
type DashboardData struct {
	ListenAddr  string `json:"listen_addr,omitempty"`
	Port        int    `json:"port,omitempty"`
	TLSCertPath string `json:"cert,omitempty"`
	TLSKeyPath  string `json:"key,omitempty"`
	PageTitle   string `json:"page_title,omitempty"`
	EnableCORS  bool   `json:"enable_cors,omitempty"`
}

// RegistryData configures image publishing.
type RegistryData struct {
	Repository string `json:"repository"`
	Tag        string `json:"tag,omitempty"`
}
