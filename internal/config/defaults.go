package config

// Conversion backends accepted by processing.backend.
const (
	BackendPyne       = "pyne"
	BackendBacktrader = "backtrader"
)

const (
	defaultOutputDir             = "~/.local/share/refinery/processed"
	defaultLogDir                = "~/.local/share/refinery/logs"
	defaultLLMBaseURL            = "http://localhost:8000/v1"
	defaultLLMTimeoutSeconds     = 120
	defaultBatchSize             = 10
	defaultMaxConvertAttempts    = 5
	defaultBestOfN               = 3
	defaultDescribeWorkers       = 3
	defaultMinDescriptionWords   = 100
	defaultQualityScoreThreshold = 40
	defaultBackend               = BackendBacktrader
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Processing: Processing{
			BatchSize:             defaultBatchSize,
			MaxConvertAttempts:    defaultMaxConvertAttempts,
			BestOfN:               defaultBestOfN,
			DescribeWorkers:       defaultDescribeWorkers,
			MinDescriptionWords:   defaultMinDescriptionWords,
			QualityScoreThreshold: defaultQualityScoreThreshold,
			EnableQualityFilter:   true,
			UseLLMValidation:      true,
			Backend:               defaultBackend,
		},
		Ledger: Ledger{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
