// Package extraction talks to the LLM collaborator that turns raw articles
// into structured entity extractions. The engine treats it as a black box:
// it only sees the structured result, never the prompt or the model.
package extraction

import (
	"context"
	"time"

	"horse.fit/narratives/internal/narrative"
)

// ArticleInput is the raw material the collaborator sees for one article.
type ArticleInput struct {
	ArticleID   string
	Title       string
	BodyText    string
	Source      string
	PublishedAt time.Time
}

// Extractor produces a structured extraction for one article. An empty
// nucleus entity in the result is a valid outcome (the article simply never
// clusters), not an error.
type Extractor interface {
	Extract(ctx context.Context, input ArticleInput) (*narrative.Extraction, error)
}
