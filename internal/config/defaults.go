package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:        "~/.local/share/trailmark",
			SyncWrites:     true,
			GCIntervalMins: 5,
			GCDiscardRatio: 0.5,
		},
		Capture: CaptureConfig{
			ExcludePrivate:     true,
			UseDefaultDenylist: true,
			DenylistDomains:    []string{},
			DenylistRegex:      []string{},
		},
		Retention: RetentionConfig{
			Days: 90,
		},
		Index: IndexConfig{
			SearchLimit: 10,
			TitleWeight: 2.0,
			URLWeight:   1.0,
		},
		Suggest: SuggestConfig{
			Limit:           8,
			SourceTimeoutMs: 250,
			IncludeSessions: true,
		},
		Session: SessionConfig{
			SaveIntervalMs: 1000,
			SaveBurst:      1,
			PrefixLimit:    5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
