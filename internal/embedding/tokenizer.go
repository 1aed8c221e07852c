package embedding

import "strings"

// Token ids reserved by BERT-style vocabularies.
const (
	clsToken   = 101
	sepToken   = 102
	vocabSpace = 30000
)

// Tokenizer produces the three input tensors of a BERT-style encoder.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer maps each lowercased word to a hashed vocabulary slot. Menu text mixes
// Vietnamese dish names with prices, so words are split on anything that is not a letter or digit.
type HashTokenizer struct{}

// Tokenize returns [CLS] words... [SEP] padded with zeros to maxTokens.
func (t *HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsToken
	attentionMask[0] = 1
	pos := 1
	for _, word := range SplitWords(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		// Offset past the special tokens so no word collides with [CLS] or [SEP].
		inputIDs[pos] = int64(HashString(word)%(vocabSpace-1000)) + 1000
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = sepToken
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// TokenCount reports how many word tokens of text fit in maxTokens after [CLS] and [SEP].
func TokenCount(text string, maxTokens int) int {
	n := len(SplitWords(text))
	if limit := maxTokens - 2; n > limit {
		return limit
	}
	return n
}
