package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)

	assert.Equal(t, "custom-model", embedder.model)
	assert.Equal(t, 42, embedder.dimension)
}

func TestNewEmbedderDefaults(t *testing.T) {
	embedder := NewEmbedder("dummy-key")

	assert.Equal(t, DefaultEmbeddingModel, embedder.ModelName())
	assert.Equal(t, DefaultEmbeddingDimension, embedder.dimension)
}
