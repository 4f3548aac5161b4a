package settings

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Pipeline kinds.
const (
	KindData = "data"
	KindML   = "ml"
	KindAI   = "ai"
)

// Extraction source kinds.
const (
	SourceFile = "file"
	SourceAPI  = "api"
)

// ML stage modes.
const (
	MLTrain   = "train"
	MLPredict = "predict"
)

const (
	defaultEntity          = "orders"
	defaultInputDir        = "data"
	defaultOutputURI       = "file://out"
	defaultBatchSize       = 100
	defaultMaxConcurrency  = 8
	defaultAtRiskAfterDays = 90
	defaultGenerateModel   = "claude-sonnet-4-5"
	defaultGenerateTokens  = 1024
)

// Settings is the single configuration record for a run. It is constructed
// once at process start and passed by value to every stage constructor;
// nothing mutates it afterwards.
type Settings struct {
	PipelineKind string
	Entity       string
	SourceKind   string
	InputDir     string
	OutputURI    string
	BatchSize    int

	APIKey     string
	APIBaseURL string

	GenerateModel     string
	GenerateMaxTokens int64
	MaxConcurrency    int

	MLMode    string
	ModelPath string

	// Business-rule parameters. ReferenceDate anchors date-relative derived
	// fields; when zero the orchestrator fills it from its clock, and runs
	// that need to be reproducible set it explicitly.
	AtRiskAfterDays int
	ReferenceDate   time.Time
}

// Overrides carries explicit values that win over the environment. Zero
// values mean "not set".
type Overrides struct {
	PipelineKind      string
	Entity            string
	SourceKind        string
	InputDir          string
	OutputURI         string
	BatchSize         int
	APIKey            string
	APIBaseURL        string
	GenerateModel     string
	GenerateMaxTokens int64
	MaxConcurrency    int
	MLMode            string
	ModelPath         string
	AtRiskAfterDays   int
	ReferenceDate     time.Time
}

// Load builds Settings from, in increasing priority: defaults, process
// environment, explicit overrides. A development .env file is layered into
// the environment by the caller (via godotenv) before Load runs; in
// production the deployment's secret manager injects the same variables.
func Load(ov Overrides) (Settings, error) {
	s := Settings{
		PipelineKind:      KindData,
		Entity:            defaultEntity,
		SourceKind:        SourceFile,
		InputDir:          defaultInputDir,
		OutputURI:         defaultOutputURI,
		BatchSize:         defaultBatchSize,
		GenerateModel:     defaultGenerateModel,
		GenerateMaxTokens: defaultGenerateTokens,
		MaxConcurrency:    defaultMaxConcurrency,
		MLMode:            MLTrain,
		AtRiskAfterDays:   defaultAtRiskAfterDays,
	}

	setString(&s.PipelineKind, "FLOWLINE_PIPELINE_KIND")
	setString(&s.Entity, "FLOWLINE_ENTITY")
	setString(&s.SourceKind, "FLOWLINE_SOURCE_KIND")
	setString(&s.InputDir, "FLOWLINE_INPUT_DIR")
	setString(&s.OutputURI, "FLOWLINE_OUTPUT_URI")
	setString(&s.APIKey, "FLOWLINE_API_KEY")
	setString(&s.APIBaseURL, "FLOWLINE_API_BASE_URL")
	setString(&s.GenerateModel, "FLOWLINE_GENERATE_MODEL")
	setString(&s.MLMode, "FLOWLINE_ML_MODE")
	setString(&s.ModelPath, "FLOWLINE_MODEL_PATH")
	if err := setInt(&s.BatchSize, "FLOWLINE_BATCH_SIZE"); err != nil {
		return Settings{}, err
	}
	if err := setInt(&s.MaxConcurrency, "FLOWLINE_MAX_CONCURRENCY"); err != nil {
		return Settings{}, err
	}
	if err := setInt(&s.AtRiskAfterDays, "FLOWLINE_AT_RISK_AFTER_DAYS"); err != nil {
		return Settings{}, err
	}
	if err := setInt64(&s.GenerateMaxTokens, "FLOWLINE_GENERATE_MAX_TOKENS"); err != nil {
		return Settings{}, err
	}
	if raw := os.Getenv("FLOWLINE_REFERENCE_DATE"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Settings{}, fmt.Errorf("FLOWLINE_REFERENCE_DATE: %q is not a date (want YYYY-MM-DD)", raw)
		}
		s.ReferenceDate = t.UTC()
	}

	applyOverrides(&s, ov)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings no stage could run with. Configuration errors
// are fatal before any stage starts.
func (s Settings) Validate() error {
	switch s.PipelineKind {
	case KindData, KindML, KindAI:
	default:
		return fmt.Errorf("invalid pipeline kind %q (want %s, %s or %s)", s.PipelineKind, KindData, KindML, KindAI)
	}
	if s.Entity == "" {
		return errors.New("entity is required")
	}
	switch s.SourceKind {
	case SourceFile:
		if s.InputDir == "" {
			return errors.New("input dir is required for file source")
		}
	case SourceAPI:
		if s.APIBaseURL == "" {
			return errors.New("API base URL is required for api source")
		}
		if s.APIKey == "" {
			return errors.New("API key is required for api source")
		}
	default:
		return fmt.Errorf("invalid source kind %q (want %s or %s)", s.SourceKind, SourceFile, SourceAPI)
	}
	if s.OutputURI == "" {
		return errors.New("output URI is required")
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", s.BatchSize)
	}
	if s.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", s.MaxConcurrency)
	}
	if s.AtRiskAfterDays <= 0 {
		return fmt.Errorf("at-risk threshold must be positive, got %d", s.AtRiskAfterDays)
	}
	if s.PipelineKind == KindML {
		if s.MLMode != MLTrain && s.MLMode != MLPredict {
			return fmt.Errorf("invalid ml mode %q (want %s or %s)", s.MLMode, MLTrain, MLPredict)
		}
		if s.ModelPath == "" {
			return errors.New("model path is required for ml pipelines")
		}
	}
	if s.PipelineKind == KindAI && s.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		return errors.New("ai pipelines require FLOWLINE_API_KEY or ANTHROPIC_API_KEY")
	}
	return nil
}

func applyOverrides(s *Settings, ov Overrides) {
	if ov.PipelineKind != "" {
		s.PipelineKind = ov.PipelineKind
	}
	if ov.Entity != "" {
		s.Entity = ov.Entity
	}
	if ov.SourceKind != "" {
		s.SourceKind = ov.SourceKind
	}
	if ov.InputDir != "" {
		s.InputDir = ov.InputDir
	}
	if ov.OutputURI != "" {
		s.OutputURI = ov.OutputURI
	}
	if ov.BatchSize != 0 {
		s.BatchSize = ov.BatchSize
	}
	if ov.APIKey != "" {
		s.APIKey = ov.APIKey
	}
	if ov.APIBaseURL != "" {
		s.APIBaseURL = ov.APIBaseURL
	}
	if ov.GenerateModel != "" {
		s.GenerateModel = ov.GenerateModel
	}
	if ov.GenerateMaxTokens != 0 {
		s.GenerateMaxTokens = ov.GenerateMaxTokens
	}
	if ov.MaxConcurrency != 0 {
		s.MaxConcurrency = ov.MaxConcurrency
	}
	if ov.MLMode != "" {
		s.MLMode = ov.MLMode
	}
	if ov.ModelPath != "" {
		s.ModelPath = ov.ModelPath
	}
	if ov.AtRiskAfterDays != 0 {
		s.AtRiskAfterDays = ov.AtRiskAfterDays
	}
	if !ov.ReferenceDate.IsZero() {
		s.ReferenceDate = ov.ReferenceDate.UTC()
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	*dst = v
	return nil
}

func setInt64(dst *int64, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	*dst = v
	return nil
}
