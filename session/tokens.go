package session

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/linanwx/triptych/logger"
	"github.com/linanwx/triptych/provider"
)

// perMessageOverhead approximates the role and separator tokens that chat
// formats add around every message.
const perMessageOverhead = 4

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			logger.Warn("tokenizer unavailable, using character estimate", "err", err)
			return
		}
		codec = c
	})
	return codec
}

// EstimateTokens approximates the prompt size of messages plus an optional
// system prompt. The count uses cl100k for every vendor, so it is only an
// indication; nothing is truncated based on it.
func EstimateTokens(messages []provider.Message, systemPrompt string) int {
	total := 0
	if systemPrompt != "" {
		total += countText(systemPrompt) + perMessageOverhead
	}
	for _, m := range messages {
		total += countText(m.Content) + perMessageOverhead
	}
	return total
}

func countText(text string) int {
	if text == "" {
		return 0
	}
	if c := getCodec(); c != nil {
		if ids, _, err := c.Encode(text); err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}
