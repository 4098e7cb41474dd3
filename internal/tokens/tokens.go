// Package tokens counts and trims text by cl100k_base tokens.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

// getCodec returns the cl100k_base tokenizer.
func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// Count returns the token count of text. If the codec is unavailable it
// falls back to one token per four bytes.
func Count(text string) int {
	c, err := getCodec()
	if err != nil {
		return len(text) / 4
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(ids)
}

// Truncate returns the longest prefix of text that fits in max tokens and
// whether anything was cut.
func Truncate(text string, max int) (string, bool) {
	if max <= 0 {
		return "", text != ""
	}
	c, err := getCodec()
	if err != nil {
		if len(text) <= max*4 {
			return text, false
		}
		return text[:max*4], true
	}
	ids, _, err := c.Encode(text)
	if err != nil || len(ids) <= max {
		return text, false
	}
	out, err := c.Decode(ids[:max])
	if err != nil {
		return text[:min(len(text), max*4)], true
	}
	return out, true
}
