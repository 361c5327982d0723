package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBareList(t *testing.T) {
	page, err := Normalize([]byte(` [{"id":1},{"id":2}] `))
	require.NoError(t, err)
	assert.Equal(t, ShapeList, page.Shape)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Count)
	assert.Nil(t, page.Next)
	assert.Nil(t, page.Previous)
}

func TestNormalizeEnvelope(t *testing.T) {
	page, err := Normalize([]byte(`{"count":57,"next":"n","previous":"p","results":[{"id":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, ShapeEnvelope, page.Shape)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 57, page.Count)
	assert.Equal(t, "n", *page.Next)
	assert.Equal(t, "p", *page.Previous)
}

func TestNormalizeEnvelopeWithoutCount(t *testing.T) {
	page, err := Normalize([]byte(`{"results":[{"id":1},{"id":2},{"id":3}],"next":null}`))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.Nil(t, page.Next)
}

func TestNormalizeEmptyShapes(t *testing.T) {
	page, err := Normalize([]byte(`[]`))
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Zero(t, page.Count)

	page, err = Normalize([]byte(`{"results":null}`))
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
}

func TestNormalizeRejectsUnknownShapes(t *testing.T) {
	for _, raw := range []string{``, `"text"`, `42`, `{"detail":"x"}`, `{"results":{}}`, `[1,`} {
		_, err := Normalize([]byte(raw))
		assert.ErrorIs(t, err, ErrUnexpectedShape, raw)
	}
}
