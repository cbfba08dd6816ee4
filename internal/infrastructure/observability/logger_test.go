package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_JSONOutsideDevelopment(t *testing.T) {
	previous := log.Logger
	defer func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}()

	var buf bytes.Buffer
	initLogger(&buf, "cars-insurance", "production")

	LoggerFromContext(context.Background()).Info().Int64("insurance_id", 7).Msg("insurance added")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "cars-insurance", line["service"])
	assert.Equal(t, "production", line["env"])
	assert.Equal(t, "insurance added", line["message"])
	assert.EqualValues(t, 7, line["insurance_id"])
	assert.NotContains(t, line, "trace_id")
}

func TestRecordHelpers_NilMetrics(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordRequestMetric(context.Background(), nil, "GET", "/health", 200, 0)
		RecordDBMetric(context.Background(), nil, "insurance.list", 0)
		RecordInsuranceWrite(context.Background(), nil, "add", "ok")
		RecordCacheHit(context.Background(), nil, "k")
		RecordCacheMiss(context.Background(), nil, "k")
	})
}
