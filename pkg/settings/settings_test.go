package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := Load(Overrides{})
		require.NoError(t, err)
		require.Equal(t, KindData, s.PipelineKind)
		require.Equal(t, SourceFile, s.SourceKind)
		require.Equal(t, "orders", s.Entity)
		require.Equal(t, defaultBatchSize, s.BatchSize)
		require.Equal(t, defaultAtRiskAfterDays, s.AtRiskAfterDays)
	})

	t.Run("environment_overrides_defaults", func(t *testing.T) {
		t.Setenv("FLOWLINE_ENTITY", "campaigns")
		t.Setenv("FLOWLINE_BATCH_SIZE", "25")

		s, err := Load(Overrides{})
		require.NoError(t, err)
		require.Equal(t, "campaigns", s.Entity)
		require.Equal(t, 25, s.BatchSize)
	})

	t.Run("explicit_overrides_win_over_environment", func(t *testing.T) {
		t.Setenv("FLOWLINE_ENTITY", "campaigns")

		s, err := Load(Overrides{Entity: "orders", BatchSize: 7})
		require.NoError(t, err)
		require.Equal(t, "orders", s.Entity)
		require.Equal(t, 7, s.BatchSize)
	})

	t.Run("generate_max_tokens_from_environment", func(t *testing.T) {
		t.Setenv("FLOWLINE_GENERATE_MAX_TOKENS", "4096")

		s, err := Load(Overrides{})
		require.NoError(t, err)
		require.Equal(t, int64(4096), s.GenerateMaxTokens)

		s, err = Load(Overrides{GenerateMaxTokens: 256})
		require.NoError(t, err)
		require.Equal(t, int64(256), s.GenerateMaxTokens)
	})

	t.Run("reference_date_from_environment", func(t *testing.T) {
		t.Setenv("FLOWLINE_REFERENCE_DATE", "2024-06-01")

		s, err := Load(Overrides{})
		require.NoError(t, err)
		require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), s.ReferenceDate)
	})

	t.Run("bad_integer_environment_value", func(t *testing.T) {
		t.Setenv("FLOWLINE_BATCH_SIZE", "many")

		_, err := Load(Overrides{})
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Settings {
		s, err := Load(Overrides{})
		require.NoError(t, err)
		return s
	}

	t.Run("rejects_unknown_pipeline_kind", func(t *testing.T) {
		t.Parallel()
		s := base()
		s.PipelineKind = "batch"
		require.Error(t, s.Validate())
	})

	t.Run("rejects_unknown_source_kind", func(t *testing.T) {
		t.Parallel()
		s := base()
		s.SourceKind = "ftp"
		require.Error(t, s.Validate())
	})

	t.Run("api_source_requires_credentials", func(t *testing.T) {
		t.Parallel()
		s := base()
		s.SourceKind = SourceAPI
		s.APIBaseURL = "https://example.com"
		s.APIKey = ""
		require.Error(t, s.Validate())

		s.APIKey = "key"
		require.NoError(t, s.Validate())
	})

	t.Run("ml_pipelines_require_mode_and_model_path", func(t *testing.T) {
		t.Parallel()
		s := base()
		s.PipelineKind = KindML
		s.MLMode = "guess"
		s.ModelPath = "model.json"
		require.Error(t, s.Validate())

		s.MLMode = MLPredict
		require.NoError(t, s.Validate())

		s.ModelPath = ""
		require.Error(t, s.Validate())
	})

	t.Run("rejects_non_positive_batch_size", func(t *testing.T) {
		t.Parallel()
		s := base()
		s.BatchSize = 0
		require.Error(t, s.Validate())
	})

	t.Run("rejects_non_positive_at_risk_threshold", func(t *testing.T) {
		t.Parallel()
		s := base()
		s.AtRiskAfterDays = -1
		require.Error(t, s.Validate())
	})
}
