package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	var yamlConfig struct {
		Dataset struct {
			Name      string   `yaml:"name"`
			StoreURL  string   `yaml:"store_url"`
			Variables []string `yaml:"variables"`
			LatVar    string   `yaml:"lat_var"`
			LonVar    string   `yaml:"lon_var"`
			BaseYear  int      `yaml:"base_year"`
			Anomaly   bool     `yaml:"anomaly"`
		} `yaml:"dataset"`
		Regrid struct {
			StepDegrees float64 `yaml:"step_degrees"`
			Workers     int     `yaml:"workers"`
		} `yaml:"regrid"`
		Cache *struct {
			Path    string `yaml:"path"`
			Enabled bool   `yaml:"enabled"`
		} `yaml:"cache"`
		Controllers []struct {
			Type      string `yaml:"type"`
			Dashboard *struct {
				ListenAddr  string `yaml:"listen_addr"`
				Port        int    `yaml:"port"`
				TLSCertPath string `yaml:"cert"`
				TLSKeyPath  string `yaml:"key"`
				PageTitle   string `yaml:"page_title"`
				EnableCORS  bool   `yaml:"enable_cors"`
			} `yaml:"dashboard"`
		} `yaml:"controllers"`
		Registry *struct {
			Repository string `yaml:"repository"`
			Tag        string `yaml:"tag"`
		} `yaml:"registry"`
	}

	if err := yaml.Unmarshal(cfgFile, &yamlConfig); err != nil {
		return nil, err
	}

	config := &ConfigData{
		Dataset: DatasetData{
			Name:      yamlConfig.Dataset.Name,
			StoreURL:  yamlConfig.Dataset.StoreURL,
			Variables: yamlConfig.Dataset.Variables,
			LatVar:    yamlConfig.Dataset.LatVar,
			LonVar:    yamlConfig.Dataset.LonVar,
			BaseYear:  yamlConfig.Dataset.BaseYear,
			Anomaly:   yamlConfig.Dataset.Anomaly,
		},
		Regrid: RegridData{
			StepDegrees: yamlConfig.Regrid.StepDegrees,
			Workers:     yamlConfig.Regrid.Workers,
		},
	}

	if yamlConfig.Cache != nil {
		config.Cache = &CacheData{
			Path:    yamlConfig.Cache.Path,
			Enabled: yamlConfig.Cache.Enabled,
		}
	}

	for _, con := range yamlConfig.Controllers {
		cd := ControllerData{Type: con.Type}
		if con.Dashboard != nil {
			cd.Dashboard = &DashboardData{
				ListenAddr:  con.Dashboard.ListenAddr,
				Port:        con.Dashboard.Port,
				TLSCertPath: con.Dashboard.TLSCertPath,
				TLSKeyPath:  con.Dashboard.TLSKeyPath,
				PageTitle:   con.Dashboard.PageTitle,
				EnableCORS:  con.Dashboard.EnableCORS,
			}
		}
		config.Controllers = append(config.Controllers, cd)
	}

	if yamlConfig.Registry != nil {
		config.Registry = &RegistryData{
			Repository: yamlConfig.Registry.Repository,
			Tag:        yamlConfig.Registry.Tag,
		}
	}

	if config.Dataset.StoreURL == "" {
		return nil, fmt.Errorf("config %s: dataset.store_url is required", y.filename)
	}
	if len(config.Dataset.Variables) == 0 {
		return nil, fmt.Errorf("config %s: dataset.variables must name at least one variable", y.filename)
	}

	y.config = config
	return config, nil
}

// GetDataset returns the dataset section
func (y *YAMLProvider) GetDataset() (*DatasetData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return &y.config.Dataset, nil
}

// GetControllers returns the controllers section
func (y *YAMLProvider) GetControllers() ([]ControllerData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return y.config.Controllers, nil
}

// Close is a no-op for the YAML provider
func (y *YAMLProvider) Close() error { return nil }
