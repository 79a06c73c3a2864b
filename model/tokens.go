package model

import (
	"github.com/pkoukk/tiktoken-go"
)

// CountTokens estimates the token footprint of a prompt. Local models
// do not share the tiktoken vocabulary, so treat this as a budget
// estimate, not an exact count.
func CountTokens(text string) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	tokens := enc.Encode(text, nil, nil)
	return len(tokens), nil
}
