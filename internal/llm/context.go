package llm

import (
	"github.com/ubaidzafar05/Rag-github/internal/models"
	"github.com/ubaidzafar05/Rag-github/internal/retrieval"
	"github.com/ubaidzafar05/Rag-github/internal/tokens"
)

// BuildContext picks what the agents see. Retrieved chunks win; without any
// the packed repository is cut to maxTokens. Citations are only produced
// for chunks.
func BuildContext(chunks []retrieval.Chunk, packed string, maxTokens int) (string, []models.Citation) {
	if len(chunks) > 0 {
		return retrieval.Format(chunks), retrieval.Citations(chunks)
	}
	if maxTokens <= 0 {
		return packed, nil
	}
	out, _ := tokens.Truncate(packed, maxTokens)
	return out, nil
}
