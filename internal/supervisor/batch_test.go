package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkSymbolsRespectsMaxPerBatch(t *testing.T) {
	symbols := make([]string, 45)
	for i := range symbols {
		symbols[i] = string(rune('A' + i%26))
	}

	batches := ChunkSymbols(symbols, 20)
	assert.Len(t, batches, 3)
	assert.Len(t, batches[0], 20)
	assert.Len(t, batches[1], 20)
	assert.Len(t, batches[2], 5)
}

func TestChunkSymbolsDefaultsWhenZero(t *testing.T) {
	symbols := make([]string, 25)
	batches := ChunkSymbols(symbols, 0)
	assert.Len(t, batches, 2)
	assert.Len(t, batches[0], MaxPerBatch)
}

func TestChunkSymbolsEmptyInput(t *testing.T) {
	batches := ChunkSymbols(nil, 20)
	assert.Empty(t, batches)
}
