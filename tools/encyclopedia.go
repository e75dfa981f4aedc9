package tools

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/tools/wikipedia"
)

// EncyclopediaTopK is the number of page summaries returned per lookup.
const EncyclopediaTopK = 1

// Encyclopedia searches Wikipedia through the langchaingo wikipedia tool.
type Encyclopedia struct {
	wiki wikipedia.Tool
}

func NewEncyclopedia(userAgent string) *Encyclopedia {
	w := wikipedia.New(userAgent)
	w.TopK = EncyclopediaTopK
	return &Encyclopedia{wiki: w}
}

func (e *Encyclopedia) Search(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "No topic given.", nil
	}
	return e.wiki.Call(ctx, topic)
}
