package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestICCChunkCountBoundaries(t *testing.T) {
	assert.Equal(t, 1, iccChunkCount(0))
	assert.Equal(t, 1, iccChunkCount(1))
	assert.Equal(t, 1, iccChunkCount(maxICCChunkPayload))
	assert.Equal(t, 2, iccChunkCount(maxICCChunkPayload+1))
	assert.Equal(t, 2, iccChunkCount(2*maxICCChunkPayload))
	assert.Equal(t, 3, iccChunkCount(2*maxICCChunkPayload+1))
}
