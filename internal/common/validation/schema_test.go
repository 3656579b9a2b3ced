// internal/common/validation/schema_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInsightResponse_Valid(t *testing.T) {
	doc := []byte(`{"insights":[{"category":"market","priority":"high","summary":"Retail demand grew across every surveyed region this year.","evidence_count":3}]}`)

	res, err := ValidateInsightResponse(doc)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateInsightResponse_UnknownCategory(t *testing.T) {
	doc := []byte(`{"insights":[{"category":"finance","priority":"high","summary":"Summary long enough to pass the length floor easily.","evidence_count":1}]}`)

	res, err := ValidateInsightResponse(doc)
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestValidateInsightResponse_ShortSummary(t *testing.T) {
	doc := []byte(`{"insights":[{"category":"market","priority":"low","summary":"too short","evidence_count":1}]}`)

	res, err := ValidateInsightResponse(doc)
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestValidateInsightResponse_ExtraFieldRejected(t *testing.T) {
	doc := []byte(`{"insights":[{"category":"market","priority":"low","summary":"Summary long enough to pass the length floor easily.","evidence_count":1,"source_urls":["https://a.example"]}]}`)

	res, err := ValidateInsightResponse(doc)
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestValidateInsightResponse_NotJSON(t *testing.T) {
	_, err := ValidateInsightResponse([]byte("not json at all"))
	assert.Error(t, err)
}
