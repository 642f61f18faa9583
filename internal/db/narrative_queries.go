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

// NarrativeListItem is the slim read model used by list views. Heavier
// fields (full fingerprint, lifecycle history) are detail-only.
type NarrativeListItem struct {
	NarrativeUUID    string    `json:"narrative_uuid"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	NucleusEntity    string    `json:"nucleus_entity"`
	LifecycleState   string    `json:"lifecycle_state"`
	ArticleCount     int       `json:"article_count"`
	MentionVelocity  float64   `json:"mention_velocity"`
	Momentum         string    `json:"momentum"`
	ReawakeningCount int       `json:"reawakening_count"`
	FirstSeen        time.Time `json:"first_seen"`
	LastUpdated      time.Time `json:"last_updated"`
}

// NarrativeDetail is the full single-narrative read model.
type NarrativeDetail struct {
	NarrativeListItem
	Fingerprint          json.RawMessage          `json:"fingerprint"`
	EntitySalience       json.RawMessage          `json:"entity_salience,omitempty"`
	LifecycleHistory     json.RawMessage          `json:"lifecycle_history,omitempty"`
	MergedFrom           json.RawMessage          `json:"merged_from,omitempty"`
	ResurrectionVelocity float64                  `json:"resurrection_velocity"`
	NeedsSummaryUpdate   bool                     `json:"needs_summary_update"`
	CreatedAt            time.Time                `json:"created_at"`
	Articles             []NarrativeDetailArticle `json:"articles"`
}

// NarrativeDetailArticle is one constituent article row in detail output.
type NarrativeDetailArticle struct {
	ArticleUUID string    `json:"article_uuid"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         *string   `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	MatchedAt   time.Time `json:"matched_at"`
}

// NarrativeView selects which lifecycle slice a list query returns.
type NarrativeView string

const (
	// ViewActive returns narratives in the currently-moving states and
	// excludes dormant and echo.
	ViewActive NarrativeView = "active"
	// ViewArchive returns dormant narratives updated within a bounded
	// recency window.
	ViewArchive NarrativeView = "archive"
	// ViewResurrections returns narratives that have reawakened at least
	// once, regardless of current state.
	ViewResurrections NarrativeView = "resurrections"
)

// ParseNarrativeView validates a view name from CLI or query-string input.
func ParseNarrativeView(raw string) (NarrativeView, error) {
	switch NarrativeView(strings.ToLower(strings.TrimSpace(raw))) {
	case ViewActive, "":
		return ViewActive, nil
	case ViewArchive:
		return ViewArchive, nil
	case ViewResurrections:
		return ViewResurrections, nil
	}
	return "", fmt.Errorf("unknown narrative view %q", raw)
}

// NarrativeListOptions controls narrative list queries.
type NarrativeListOptions struct {
	View          NarrativeView
	ArchiveWindow time.Duration
	Limit         int
	Now           time.Time
}

const narrativeListSelect = `
SELECT
	n.narrative_uuid::text,
	n.title,
	n.summary,
	n.nucleus_entity,
	n.lifecycle_state,
	COUNT(na.narrative_article_id) AS article_count,
	n.mention_velocity,
	n.momentum,
	n.reawakening_count,
	n.first_seen,
	n.last_updated
FROM narratives.narratives n
LEFT JOIN narratives.narrative_articles na
	ON na.narrative_uuid = n.narrative_uuid
`

const narrativeListGroup = `
GROUP BY
	n.narrative_uuid,
	n.title,
	n.summary,
	n.nucleus_entity,
	n.lifecycle_state,
	n.mention_velocity,
	n.momentum,
	n.reawakening_count,
	n.first_seen,
	n.last_updated
ORDER BY n.last_updated DESC
`

// ListNarratives returns one of the three read views. Rows with an empty
// nucleus entity are filtered defensively even though writes reject them.
func (p *Pool) ListNarratives(ctx context.Context, opts NarrativeListOptions) ([]NarrativeListItem, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	now := opts.Now
	if now.IsZero() {
		now = globaltime.UTC()
	}
	archiveWindow := opts.ArchiveWindow
	if archiveWindow <= 0 {
		archiveWindow = 30 * 24 * time.Hour
	}

	var (
		where string
		args  []any
	)
	switch opts.View {
	case ViewActive, "":
		states := make([]string, len(narrative.ActiveStates))
		for i, s := range narrative.ActiveStates {
			states[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, string(s))
		}
		where = `
WHERE n.status = 'active'
  AND n.nucleus_entity <> ''
  AND n.lifecycle_state IN (` + strings.Join(states, ", ") + `)`
	case ViewArchive:
		where = `
WHERE n.status = 'active'
  AND n.nucleus_entity <> ''
  AND n.lifecycle_state = 'dormant'
  AND n.last_updated >= $1`
		args = append(args, now.UTC().Add(-archiveWindow))
	case ViewResurrections:
		where = `
WHERE n.status = 'active'
  AND n.nucleus_entity <> ''
  AND n.reawakening_count > 0`
	default:
		return nil, fmt.Errorf("unknown narrative view %q", opts.View)
	}

	q := narrativeListSelect + where + narrativeListGroup + fmt.Sprintf("LIMIT $%d\n", len(args)+1)
	args = append(args, opts.Limit)

	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query narratives view %s: %w", opts.View, err)
	}
	defer rows.Close()

	items := make([]NarrativeListItem, 0, opts.Limit)
	for rows.Next() {
		var row NarrativeListItem
		if err := rows.Scan(
			&row.NarrativeUUID,
			&row.Title,
			&row.Summary,
			&row.NucleusEntity,
			&row.LifecycleState,
			&row.ArticleCount,
			&row.MentionVelocity,
			&row.Momentum,
			&row.ReawakeningCount,
			&row.FirstSeen,
			&row.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan narrative row: %w", err)
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// GetNarrativeDetail returns the full read model for one narrative,
// including constituent articles in publish order.
func (p *Pool) GetNarrativeDetail(ctx context.Context, narrativeUUID string) (*NarrativeDetail, error) {
	trimmed := strings.TrimSpace(narrativeUUID)
	if trimmed == "" {
		return nil, fmt.Errorf("narrative UUID is required")
	}

	const q = `
SELECT
	n.narrative_uuid::text,
	n.title,
	n.summary,
	n.nucleus_entity,
	n.lifecycle_state,
	n.mention_velocity,
	n.momentum,
	n.reawakening_count,
	n.first_seen,
	n.last_updated,
	n.fingerprint,
	n.entity_salience,
	n.lifecycle_history,
	n.merged_from,
	n.resurrection_velocity,
	n.needs_summary_update,
	n.created_at
FROM narratives.narratives n
WHERE n.narrative_uuid = $1::uuid
  AND n.status = 'active'
`
	var detail NarrativeDetail
	err := p.QueryRow(ctx, q, trimmed).Scan(
		&detail.NarrativeUUID,
		&detail.Title,
		&detail.Summary,
		&detail.NucleusEntity,
		&detail.LifecycleState,
		&detail.MentionVelocity,
		&detail.Momentum,
		&detail.ReawakeningCount,
		&detail.FirstSeen,
		&detail.LastUpdated,
		&detail.Fingerprint,
		&detail.EntitySalience,
		&detail.LifecycleHistory,
		&detail.MergedFrom,
		&detail.ResurrectionVelocity,
		&detail.NeedsSummaryUpdate,
		&detail.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, narrative.ErrNotFound
		}
		return nil, fmt.Errorf("get narrative detail %s: %w", trimmed, err)
	}

	const articlesQ = `
SELECT
	a.article_uuid::text,
	a.title,
	a.source,
	a.url,
	na.published_at,
	na.matched_at
FROM narratives.narrative_articles na
JOIN narratives.articles a
	ON a.article_uuid = na.article_uuid
WHERE na.narrative_uuid = $1::uuid
ORDER BY na.published_at, a.article_id
`
	rows, err := p.Query(ctx, articlesQ, trimmed)
	if err != nil {
		return nil, fmt.Errorf("query narrative articles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var art NarrativeDetailArticle
		if err := rows.Scan(&art.ArticleUUID, &art.Title, &art.Source, &art.URL, &art.PublishedAt, &art.MatchedAt); err != nil {
			return nil, fmt.Errorf("scan narrative article: %w", err)
		}
		detail.Articles = append(detail.Articles, art)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	detail.ArticleCount = len(detail.Articles)
	return &detail, nil
}

// EngineStats is an operational snapshot across the whole store.
type EngineStats struct {
	TotalArticles      int64            `json:"total_articles"`
	PendingExtraction  int64            `json:"pending_extraction"`
	UnassignedArticles int64            `json:"unassigned_articles"`
	TotalNarratives    int64            `json:"total_narratives"`
	NarrativesByState  map[string]int64 `json:"narratives_by_state"`
	TotalMerges        int64            `json:"total_merges"`
	OpenSummaryTasks   int64            `json:"open_summary_tasks"`
}

// GetEngineStats returns counts for the stats command and endpoint.
func (p *Pool) GetEngineStats(ctx context.Context) (*EngineStats, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM narratives.articles),
	(SELECT COUNT(*)
	 FROM narratives.articles a
	 LEFT JOIN narratives.article_extractions e ON e.article_uuid = a.article_uuid
	 WHERE e.extraction_id IS NULL),
	(SELECT COUNT(*)
	 FROM narratives.articles a
	 JOIN narratives.article_extractions e ON e.article_uuid = a.article_uuid
	 LEFT JOIN narratives.narrative_articles na ON na.article_uuid = a.article_uuid
	 WHERE na.narrative_article_id IS NULL AND e.nucleus_entity <> ''),
	(SELECT COUNT(*) FROM narratives.narratives WHERE status = 'active'),
	(SELECT COUNT(*) FROM narratives.merge_records),
	(SELECT COUNT(*) FROM narratives.summary_tasks WHERE processed_at IS NULL)
`
	stats := &EngineStats{NarrativesByState: make(map[string]int64)}
	err := p.QueryRow(ctx, q).Scan(
		&stats.TotalArticles,
		&stats.PendingExtraction,
		&stats.UnassignedArticles,
		&stats.TotalNarratives,
		&stats.TotalMerges,
		&stats.OpenSummaryTasks,
	)
	if err != nil {
		return nil, fmt.Errorf("query engine stats: %w", err)
	}

	const stateQ = `
SELECT lifecycle_state, COUNT(*)
FROM narratives.narratives
WHERE status = 'active'
GROUP BY lifecycle_state
`
	rows, err := p.Query(ctx, stateQ)
	if err != nil {
		return nil, fmt.Errorf("query state counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		stats.NarrativesByState[state] = count
	}
	return stats, rows.Err()
}
