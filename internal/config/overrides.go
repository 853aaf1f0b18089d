package config

// CallArgOverrides carries values passed explicitly on the command line or
// through an API call. It is the highest-precedence configuration tier,
// applied after Load's defaults -> user config -> project config -> env var
// chain, since an explicit argument should always win over anything
// ambient.
type CallArgOverrides struct {
	IncludePatterns []string
	ExcludePatterns []string
	MaxFileSize     int64
	DebounceSeconds int
	ParserConfig    map[string]map[string]string
}

// LoadWithCallArgs runs Load and then applies overrides on top, re-running
// Validate so an invalid explicit argument is still caught before use.
func LoadWithCallArgs(dir string, overrides *CallArgOverrides) (*Config, error) {
	cfg, err := Load(dir)
	if err != nil {
		return nil, err
	}
	if overrides == nil {
		return cfg, nil
	}

	if len(overrides.IncludePatterns) > 0 {
		cfg.Paths.Include = overrides.IncludePatterns
	}
	if len(overrides.ExcludePatterns) > 0 {
		cfg.Paths.Exclude = append(cfg.Paths.Exclude, overrides.ExcludePatterns...)
	}
	if overrides.MaxFileSize > 0 {
		cfg.Indexer.MaxFileSize = overrides.MaxFileSize
	}
	if overrides.DebounceSeconds > 0 {
		cfg.Indexer.DebounceSeconds = overrides.DebounceSeconds
	}
	for lang, opts := range overrides.ParserConfig {
		if cfg.Indexer.ParserConfig == nil {
			cfg.Indexer.ParserConfig = map[string]map[string]string{}
		}
		if cfg.Indexer.ParserConfig[lang] == nil {
			cfg.Indexer.ParserConfig[lang] = map[string]string{}
		}
		for k, v := range opts {
			cfg.Indexer.ParserConfig[lang][k] = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
