package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT special token ids and the id range hashed words are folded into.
const (
	tokenPad     = 0
	tokenCLS     = 101
	tokenSEP     = 102
	firstWordID  = 1000
	vocabSize    = 30522
	defaultInput = 256
)

// Encoding is the model input for one text, padded to a fixed length.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Tokenizer turns text into fixed-length model input.
type Tokenizer interface {
	Encode(text string, maxTokens int) Encoding
}

// HashTokenizer lowercases text, splits it into words and hashes each word into the model
// vocabulary. Paragraph references such as "CA-3.1.1" stay one token so every mention of a
// rule maps to the same id.
type HashTokenizer struct{}

// Encode returns [CLS] words... [SEP] padded to maxTokens (256 when maxTokens <= 0).
// Words past the limit are dropped.
func (HashTokenizer) Encode(text string, maxTokens int) Encoding {
	if maxTokens < 2 {
		maxTokens = defaultInput
	}
	enc := Encoding{
		InputIDs:      make([]int64, maxTokens),
		AttentionMask: make([]int64, maxTokens),
		TokenTypeIDs:  make([]int64, maxTokens),
	}
	ids := append([]int64{tokenCLS}, wordIDs(text, maxTokens-2)...)
	ids = append(ids, tokenSEP)
	for i, id := range ids {
		enc.InputIDs[i] = id
		enc.AttentionMask[i] = 1
	}
	return enc
}

func wordIDs(text string, limit int) []int64 {
	words := Words(text)
	if len(words) > limit {
		words = words[:limit]
	}
	ids := make([]int64, len(words))
	for i, w := range words {
		ids[i] = wordID(w)
	}
	return ids
}

func wordID(word string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return firstWordID + int64(h.Sum32()%(vocabSize-firstWordID))
}

// Words splits text into lowercase words. Letters and digits form words; '-' and '.' are kept
// when they join two word characters, as in "CA-3.1.1" or "1.5".
func Words(text string) []string {
	runes := []rune(strings.ToLower(text))
	var words []string
	start := -1
	for i, r := range runes {
		inner := (r == '-' || r == '.') && start >= 0 && i+1 < len(runes) && isWordRune(runes[i+1])
		if isWordRune(r) || inner {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, string(runes[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, string(runes[start:]))
	}
	return words
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
