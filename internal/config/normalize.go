package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeProcessing()
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = strings.TrimSpace(os.Getenv("REFINERY_LLM_API_KEY"))
	}
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeProcessing() {
	if c.Processing.BatchSize <= 0 {
		c.Processing.BatchSize = defaultBatchSize
	}
	if c.Processing.MaxConvertAttempts <= 0 {
		c.Processing.MaxConvertAttempts = defaultMaxConvertAttempts
	}
	if c.Processing.BestOfN <= 0 {
		c.Processing.BestOfN = defaultBestOfN
	}
	if c.Processing.DescribeWorkers <= 0 {
		c.Processing.DescribeWorkers = defaultDescribeWorkers
	}
	if c.Processing.MinDescriptionWords < 0 {
		c.Processing.MinDescriptionWords = 0
	}
	c.Processing.Backend = strings.ToLower(strings.TrimSpace(c.Processing.Backend))
	if c.Processing.Backend == "" {
		c.Processing.Backend = defaultBackend
	}
}

func (c *Config) normalizeLedger() error {
	if strings.TrimSpace(c.Ledger.Path) == "" {
		return nil
	}
	var err error
	if c.Ledger.Path, err = expandPath(c.Ledger.Path); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
