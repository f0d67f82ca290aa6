package config

// BrowserOrder lists the supported Chromium-family browsers in display order.
var BrowserOrder = []string{"chrome", "edge", "brave", "chromium", "vivaldi", "opera"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:              "~/.config/linktrail",
			SQLiteFile:        "linktrail.db",
			SQLiteJournalMode: "wal",
			BusyTimeoutMS:     5000,
		},
		Scan: ScanConfig{
			IntervalSeconds:      300,
			Schedule:             "",
			Workers:              4,
			SourceTimeoutSeconds: 30,
			AutoScan:             true,
			FullRescan:           false,
			TempDir:              "",
		},
		Browsers: map[string]bool{
			"chrome":   true,
			"edge":     true,
			"brave":    true,
			"chromium": true,
			"vivaldi":  false,
			"opera":    false,
		},
		Sources: []SourceConfig{},
		Filters: FiltersConfig{
			SubdomainMatch:  true,
			SeedDefaults:    true,
			DenylistDomains: DefaultDenylistDomains(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "",
		},
		Metrics: MetricsConfig{
			TextfilePath: "",
		},
	}
}
