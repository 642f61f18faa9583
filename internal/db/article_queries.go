package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"horse.fit/narratives/internal/globaltime"
	"horse.fit/narratives/internal/narrative"
)

// IngestArticleInput is one validated payload item ready for persistence.
type IngestArticleInput struct {
	Source       string
	SourceItemID string
	Title        string
	URL          *string
	BodyText     string
	Language     string
	PublishedAt  *time.Time
	Extraction   *narrative.Extraction
	ModelName    string
}

// IngestArticleResult reports what one InsertArticle call did.
type IngestArticleResult struct {
	ArticleUUID string
	Inserted    bool
}

// InsertArticle writes one article, deduplicating on (source, source_item_id).
// A pre-extracted payload also writes the extraction row in the same
// transaction, so re-ingesting the same feed batch is idempotent.
func (p *Pool) InsertArticle(ctx context.Context, in IngestArticleInput) (IngestArticleResult, error) {
	source := strings.TrimSpace(in.Source)
	sourceItemID := strings.TrimSpace(in.SourceItemID)
	if source == "" || sourceItemID == "" {
		return IngestArticleResult{}, fmt.Errorf("source and source_item_id are required")
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return IngestArticleResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = "und"
	}

	const insertQ = `
INSERT INTO narratives.articles (source, source_item_id, title, url, body_text, language, published_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (source, source_item_id) DO NOTHING
RETURNING article_uuid::text
`
	var articleUUID string
	inserted := true
	err = tx.QueryRow(ctx, insertQ,
		source, sourceItemID, strings.TrimSpace(in.Title), in.URL, in.BodyText, language, in.PublishedAt,
	).Scan(&articleUUID)
	if err != nil {
		if !IsNoRows(err) {
			return IngestArticleResult{}, fmt.Errorf("insert article: %w", err)
		}
		inserted = false
		const existingQ = `
SELECT article_uuid::text
FROM narratives.articles
WHERE source = $1 AND source_item_id = $2
`
		if err := tx.QueryRow(ctx, existingQ, source, sourceItemID).Scan(&articleUUID); err != nil {
			return IngestArticleResult{}, fmt.Errorf("lookup existing article: %w", err)
		}
	}

	if in.Extraction != nil {
		if err := upsertExtractionTx(ctx, tx, articleUUID, *in.Extraction, in.ModelName, globaltime.UTC()); err != nil {
			return IngestArticleResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return IngestArticleResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	return IngestArticleResult{ArticleUUID: articleUUID, Inserted: inserted}, nil
}

// UpsertExtraction records the collaborator's output for one article,
// replacing any previous run's result.
func (p *Pool) UpsertExtraction(ctx context.Context, articleUUID string, ex narrative.Extraction, modelName string, extractedAt time.Time) error {
	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := upsertExtractionTx(ctx, tx, articleUUID, ex, modelName, extractedAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func upsertExtractionTx(ctx context.Context, tx Tx, articleUUID string, ex narrative.Extraction, modelName string, extractedAt time.Time) error {
	trimmed := strings.TrimSpace(articleUUID)
	if trimmed == "" {
		return fmt.Errorf("article UUID is required")
	}

	actors, err := json.Marshal(ex.Actors)
	if err != nil {
		return fmt.Errorf("marshal actors: %w", err)
	}
	actions, err := json.Marshal(ex.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	tensions, err := json.Marshal(ex.Tensions)
	if err != nil {
		return fmt.Errorf("marshal tensions: %w", err)
	}

	const q = `
INSERT INTO narratives.article_extractions (
	article_uuid, nucleus_entity, actors, actions, tensions, summary, model_name, extracted_at
) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (article_uuid) DO UPDATE SET
	nucleus_entity = EXCLUDED.nucleus_entity,
	actors = EXCLUDED.actors,
	actions = EXCLUDED.actions,
	tensions = EXCLUDED.tensions,
	summary = EXCLUDED.summary,
	model_name = EXCLUDED.model_name,
	extracted_at = EXCLUDED.extracted_at
`
	if _, err := tx.Exec(ctx, q,
		trimmed, strings.TrimSpace(ex.NucleusEntity), actors, actions, tensions, ex.Summary, modelName, extractedAt.UTC(),
	); err != nil {
		return fmt.Errorf("upsert extraction for %s: %w", trimmed, err)
	}
	return nil
}

// PendingArticle is an ingested article awaiting collaborator extraction.
type PendingArticle struct {
	ArticleUUID string
	Source      string
	Title       string
	BodyText    string
	PublishedAt *time.Time
}

// ListArticlesPendingExtraction returns articles that have no extraction
// row yet, oldest first.
func (p *Pool) ListArticlesPendingExtraction(ctx context.Context, limit int) ([]PendingArticle, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	a.article_uuid::text,
	a.source,
	a.title,
	a.body_text,
	a.published_at
FROM narratives.articles a
LEFT JOIN narratives.article_extractions e
	ON e.article_uuid = a.article_uuid
WHERE e.extraction_id IS NULL
ORDER BY a.created_at, a.article_id
LIMIT $1
`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending articles: %w", err)
	}
	defer rows.Close()

	items := make([]PendingArticle, 0, limit)
	for rows.Next() {
		var row PendingArticle
		if err := rows.Scan(&row.ArticleUUID, &row.Source, &row.Title, &row.BodyText, &row.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan pending article: %w", err)
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// ListExtractedUnassignedArticles returns extracted articles not yet part
// of any narrative, as engine inputs for the next cycle. Articles whose
// extraction found no nucleus entity are excluded; they can never cluster.
func (p *Pool) ListExtractedUnassignedArticles(ctx context.Context, limit int) ([]narrative.Article, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	a.article_uuid::text,
	a.source,
	a.title,
	COALESCE(a.published_at, a.created_at),
	e.nucleus_entity,
	e.actors,
	e.actions,
	e.tensions,
	e.summary
FROM narratives.articles a
JOIN narratives.article_extractions e
	ON e.article_uuid = a.article_uuid
LEFT JOIN narratives.narrative_articles na
	ON na.article_uuid = a.article_uuid
WHERE na.narrative_article_id IS NULL
  AND e.nucleus_entity <> ''
ORDER BY COALESCE(a.published_at, a.created_at), a.article_id
LIMIT $1
`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query unassigned articles: %w", err)
	}
	defer rows.Close()

	items := make([]narrative.Article, 0, limit)
	for rows.Next() {
		var (
			art         narrative.Article
			actorsRaw   []byte
			actionsRaw  []byte
			tensionsRaw []byte
		)
		if err := rows.Scan(
			&art.ID,
			&art.Source,
			&art.Title,
			&art.PublishedAt,
			&art.Extraction.NucleusEntity,
			&actorsRaw,
			&actionsRaw,
			&tensionsRaw,
			&art.Extraction.Summary,
		); err != nil {
			return nil, fmt.Errorf("scan unassigned article: %w", err)
		}
		if len(actorsRaw) > 0 {
			if err := json.Unmarshal(actorsRaw, &art.Extraction.Actors); err != nil {
				return nil, fmt.Errorf("unmarshal actors for %s: %w", art.ID, err)
			}
		}
		if len(actionsRaw) > 0 {
			if err := json.Unmarshal(actionsRaw, &art.Extraction.Actions); err != nil {
				return nil, fmt.Errorf("unmarshal actions for %s: %w", art.ID, err)
			}
		}
		if len(tensionsRaw) > 0 {
			if err := json.Unmarshal(tensionsRaw, &art.Extraction.Tensions); err != nil {
				return nil, fmt.Errorf("unmarshal tensions for %s: %w", art.ID, err)
			}
		}
		items = append(items, art)
	}
	return items, rows.Err()
}
