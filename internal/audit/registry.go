package audit

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/darmiel/entitled/internal/config"
	"github.com/darmiel/entitled/internal/core"
)

// FileAuditorConfig captures the inline options of a file auditor.
type FileAuditorConfig struct {
	Path string `mapstructure:"path"`
}

// Build creates the auditor selected by the configuration. A disabled audit
// section yields a NoopAuditor so callers never have to nil-check.
func Build(cfg config.AuditConfig) (core.Auditor, error) {
	if !cfg.Enabled {
		return NewNoopAuditor(), nil
	}

	switch cfg.Type {
	case "memory":
		return NewInMemoryAuditor(), nil
	case "file":
		var fileCfg FileAuditorConfig
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Metadata: nil,
			Result:   &fileCfg,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create decoder for file auditor: %w", err)
		}
		if err := decoder.Decode(cfg.Options); err != nil {
			return nil, fmt.Errorf("failed to decode config for file auditor: %w", err)
		}
		if fileCfg.Path == "" {
			return nil, fmt.Errorf("file auditor requires a path")
		}
		return NewFileAuditor(fileCfg.Path)
	default:
		return nil, fmt.Errorf("unknown audit type %q", cfg.Type)
	}
}
