package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.Model == "" {
		return errors.New("llm.model must be set")
	}
	if c.LLM.BaseURL == "" {
		return errors.New("llm.base_url must be set")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.QualityScoreThreshold < 0 || c.Processing.QualityScoreThreshold > 100 {
		return errors.New("processing.quality_score_threshold must be between 0 and 100")
	}
	switch c.Processing.Backend {
	case BackendPyne, BackendBacktrader:
	default:
		return fmt.Errorf("processing.backend must be \"pyne\" or \"backtrader\", got %q", c.Processing.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}
