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

// NarrativeStore implements narrative.Store against Postgres. All
// multi-row writes run inside one transaction so a failed merge leaves
// both sides intact.
type NarrativeStore struct {
	pool *Pool
}

func NewNarrativeStore(pool *Pool) *NarrativeStore {
	return &NarrativeStore{pool: pool}
}

const narrativeSelectColumns = `
	narrative_uuid::text,
	title,
	summary,
	nucleus_entity,
	fingerprint,
	entity_salience,
	lifecycle_state,
	lifecycle_history,
	first_seen,
	last_updated,
	mention_velocity,
	momentum,
	reawakening_count,
	resurrection_velocity,
	needs_summary_update,
	merged_from,
	created_at`

func (s *NarrativeStore) CandidatesUpdatedSince(ctx context.Context, cutoff time.Time) ([]*narrative.Narrative, error) {
	q := `
SELECT` + narrativeSelectColumns + `
FROM narratives.narratives
WHERE status = 'active'
  AND nucleus_entity <> ''
  AND last_updated >= $1
ORDER BY last_updated DESC
`
	rows, err := s.pool.Query(ctx, q, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query candidate narratives: %w", err)
	}
	defer rows.Close()

	narratives, err := scanNarratives(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachArticleRefs(ctx, narratives); err != nil {
		return nil, err
	}
	return narratives, nil
}

func (s *NarrativeStore) GetNarrative(ctx context.Context, id string) (*narrative.Narrative, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, fmt.Errorf("narrative UUID is required")
	}

	q := `
SELECT` + narrativeSelectColumns + `
FROM narratives.narratives
WHERE narrative_uuid = $1::uuid
  AND status = 'active'
`
	n, err := scanNarrative(s.pool.QueryRow(ctx, q, trimmed))
	if err != nil {
		if IsNoRows(err) {
			return nil, narrative.ErrNotFound
		}
		return nil, fmt.Errorf("get narrative %s: %w", trimmed, err)
	}
	if err := s.attachArticleRefs(ctx, []*narrative.Narrative{n}); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NarrativeStore) ListByNucleus(ctx context.Context) (map[string][]*narrative.Narrative, error) {
	q := `
SELECT` + narrativeSelectColumns + `
FROM narratives.narratives
WHERE status = 'active'
  AND nucleus_entity <> ''
ORDER BY nucleus_entity, created_at
`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query narratives by nucleus: %w", err)
	}
	defer rows.Close()

	narratives, err := scanNarratives(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachArticleRefs(ctx, narratives); err != nil {
		return nil, err
	}

	grouped := make(map[string][]*narrative.Narrative)
	for _, n := range narratives {
		key := n.Fingerprint.NucleusEntity
		grouped[key] = append(grouped[key], n)
	}
	return grouped, nil
}

func (s *NarrativeStore) CreateNarrative(ctx context.Context, n *narrative.Narrative) error {
	payload, err := marshalNarrativeJSON(n)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const q = `
INSERT INTO narratives.narratives (
	narrative_uuid,
	title,
	summary,
	nucleus_entity,
	fingerprint,
	entity_salience,
	lifecycle_state,
	lifecycle_history,
	first_seen,
	last_updated,
	mention_velocity,
	momentum,
	reawakening_count,
	resurrection_velocity,
	needs_summary_update,
	merged_from,
	status,
	created_at,
	updated_at
) VALUES (
	$1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10,
	$11, $12, $13, $14, $15, $16, 'active', $17, $17
)
`
	_, err = tx.Exec(ctx, q,
		n.ID,
		n.Title,
		n.Summary,
		n.Fingerprint.NucleusEntity,
		payload.fingerprint,
		payload.salience,
		string(n.State),
		payload.history,
		n.FirstSeen.UTC(),
		n.LastUpdated.UTC(),
		n.MentionVelocity,
		string(n.Momentum),
		n.ReawakeningCount,
		n.ResurrectionVel,
		n.NeedsSummaryUpdate,
		payload.mergedFrom,
		n.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return narrative.ErrDuplicateNucleus
		}
		return fmt.Errorf("insert narrative: %w", err)
	}

	if err := insertArticleRefs(ctx, tx, n.ID, n.Articles); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *NarrativeStore) UpdateNarrative(ctx context.Context, n *narrative.Narrative) error {
	payload, err := marshalNarrativeJSON(n)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := updateNarrativeRow(ctx, tx, n, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return narrative.ErrNotFound
	}

	if err := insertArticleRefs(ctx, tx, n.ID, n.Articles); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *NarrativeStore) MergeInto(ctx context.Context, winner *narrative.Narrative, loserID string, mergedAt time.Time) error {
	trimmedLoser := strings.TrimSpace(loserID)
	if trimmedLoser == "" {
		return fmt.Errorf("loser narrative UUID is required")
	}
	payload, err := marshalNarrativeJSON(winner)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const reassignQ = `
UPDATE narratives.narrative_articles
SET narrative_uuid = $1::uuid
WHERE narrative_uuid = $2::uuid
`
	reassigned, err := tx.Exec(ctx, reassignQ, winner.ID, trimmedLoser)
	if err != nil {
		return fmt.Errorf("reassign merged articles: %w", err)
	}

	tag, err := updateNarrativeRow(ctx, tx, winner, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return narrative.ErrNotFound
	}

	if err := insertArticleRefs(ctx, tx, winner.ID, winner.Articles); err != nil {
		return err
	}

	const deleteQ = `
DELETE FROM narratives.narratives
WHERE narrative_uuid = $1::uuid
`
	deleted, err := tx.Exec(ctx, deleteQ, trimmedLoser)
	if err != nil {
		return fmt.Errorf("delete merged narrative: %w", err)
	}
	if deleted.RowsAffected() == 0 {
		return narrative.ErrNotFound
	}

	const recordQ = `
INSERT INTO narratives.merge_records (winner_uuid, merged_from_uuid, article_count, merged_at)
VALUES ($1::uuid, $2::uuid, $3, $4)
`
	if _, err := tx.Exec(ctx, recordQ, winner.ID, trimmedLoser, reassigned.RowsAffected(), mergedAt.UTC()); err != nil {
		return fmt.Errorf("insert merge record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *NarrativeStore) EnqueueSummaryRefresh(ctx context.Context, narrativeID, reason string) error {
	trimmed := strings.TrimSpace(narrativeID)
	if trimmed == "" {
		return fmt.Errorf("narrative UUID is required")
	}

	const q = `
INSERT INTO narratives.summary_tasks (narrative_uuid, reason, created_at)
VALUES ($1::uuid, $2, $3)
ON CONFLICT (narrative_uuid) WHERE processed_at IS NULL DO NOTHING
`
	if _, err := s.pool.Exec(ctx, q, trimmed, reason, globaltime.UTC()); err != nil {
		return fmt.Errorf("enqueue summary refresh: %w", err)
	}
	return nil
}

func (s *NarrativeStore) AssignedArticleIDs(ctx context.Context, articleIDs []string) (map[string]struct{}, error) {
	assigned := make(map[string]struct{}, len(articleIDs))
	if len(articleIDs) == 0 {
		return assigned, nil
	}

	const chunkSize = 500
	for start := 0; start < len(articleIDs); start += chunkSize {
		end := min(start+chunkSize, len(articleIDs))
		chunk := articleIDs[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, id := range chunk {
			placeholders[i] = fmt.Sprintf("$%d::uuid", i+1)
			args[i] = id
		}

		q := `
SELECT article_uuid::text
FROM narratives.narrative_articles
WHERE article_uuid IN (` + strings.Join(placeholders, ", ") + `)
`
		rows, err := s.pool.Query(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("query assigned articles: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan assigned article: %w", err)
			}
			assigned[id] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return assigned, nil
}

func updateNarrativeRow(ctx context.Context, tx Tx, n *narrative.Narrative, payload narrativeJSON) (CommandTag, error) {
	const q = `
UPDATE narratives.narratives
SET
	title = $2,
	summary = $3,
	nucleus_entity = $4,
	fingerprint = $5,
	entity_salience = $6,
	lifecycle_state = $7,
	lifecycle_history = $8,
	first_seen = $9,
	last_updated = $10,
	mention_velocity = $11,
	momentum = $12,
	reawakening_count = $13,
	resurrection_velocity = $14,
	needs_summary_update = $15,
	merged_from = $16,
	updated_at = now()
WHERE narrative_uuid = $1::uuid
  AND status = 'active'
`
	tag, err := tx.Exec(ctx, q,
		n.ID,
		n.Title,
		n.Summary,
		n.Fingerprint.NucleusEntity,
		payload.fingerprint,
		payload.salience,
		string(n.State),
		payload.history,
		n.FirstSeen.UTC(),
		n.LastUpdated.UTC(),
		n.MentionVelocity,
		string(n.Momentum),
		n.ReawakeningCount,
		n.ResurrectionVel,
		n.NeedsSummaryUpdate,
		payload.mergedFrom,
	)
	if err != nil {
		return CommandTag{}, fmt.Errorf("update narrative %s: %w", n.ID, err)
	}
	return tag, nil
}

func insertArticleRefs(ctx context.Context, tx Tx, narrativeID string, refs []narrative.ArticleRef) error {
	const q = `
INSERT INTO narratives.narrative_articles (narrative_uuid, article_uuid, published_at, matched_at)
VALUES ($1::uuid, $2::uuid, $3, now())
ON CONFLICT (article_uuid) DO NOTHING
`
	for _, ref := range refs {
		if _, err := tx.Exec(ctx, q, narrativeID, ref.ID, ref.PublishedAt.UTC()); err != nil {
			return fmt.Errorf("insert article ref %s: %w", ref.ID, err)
		}
	}
	return nil
}

func (s *NarrativeStore) attachArticleRefs(ctx context.Context, narratives []*narrative.Narrative) error {
	if len(narratives) == 0 {
		return nil
	}

	byID := make(map[string]*narrative.Narrative, len(narratives))
	placeholders := make([]string, 0, len(narratives))
	args := make([]any, 0, len(narratives))
	for i, n := range narratives {
		byID[n.ID] = n
		n.Articles = nil
		placeholders = append(placeholders, fmt.Sprintf("$%d::uuid", i+1))
		args = append(args, n.ID)
	}

	q := `
SELECT narrative_uuid::text, article_uuid::text, published_at
FROM narratives.narrative_articles
WHERE narrative_uuid IN (` + strings.Join(placeholders, ", ") + `)
ORDER BY published_at, article_uuid
`
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("query article refs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var narrativeID string
		var ref narrative.ArticleRef
		if err := rows.Scan(&narrativeID, &ref.ID, &ref.PublishedAt); err != nil {
			return fmt.Errorf("scan article ref: %w", err)
		}
		if n, ok := byID[narrativeID]; ok {
			n.Articles = append(n.Articles, ref)
		}
	}
	return rows.Err()
}

type narrativeJSON struct {
	fingerprint []byte
	salience    []byte
	history     []byte
	mergedFrom  []byte
}

func marshalNarrativeJSON(n *narrative.Narrative) (narrativeJSON, error) {
	fingerprint, err := json.Marshal(n.Fingerprint)
	if err != nil {
		return narrativeJSON{}, fmt.Errorf("marshal fingerprint: %w", err)
	}
	salience, err := json.Marshal(n.EntitySalience)
	if err != nil {
		return narrativeJSON{}, fmt.Errorf("marshal entity salience: %w", err)
	}
	history, err := json.Marshal(n.History)
	if err != nil {
		return narrativeJSON{}, fmt.Errorf("marshal lifecycle history: %w", err)
	}
	mergedFrom, err := json.Marshal(n.MergedFrom)
	if err != nil {
		return narrativeJSON{}, fmt.Errorf("marshal merge provenance: %w", err)
	}
	return narrativeJSON{
		fingerprint: fingerprint,
		salience:    salience,
		history:     history,
		mergedFrom:  mergedFrom,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNarrative(row rowScanner) (*narrative.Narrative, error) {
	var (
		n              narrative.Narrative
		nucleus        string
		fingerprintRaw []byte
		salienceRaw    []byte
		historyRaw     []byte
		mergedFromRaw  []byte
		state          string
		momentum       string
	)
	err := row.Scan(
		&n.ID,
		&n.Title,
		&n.Summary,
		&nucleus,
		&fingerprintRaw,
		&salienceRaw,
		&state,
		&historyRaw,
		&n.FirstSeen,
		&n.LastUpdated,
		&n.MentionVelocity,
		&momentum,
		&n.ReawakeningCount,
		&n.ResurrectionVel,
		&n.NeedsSummaryUpdate,
		&mergedFromRaw,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(fingerprintRaw) > 0 {
		if err := json.Unmarshal(fingerprintRaw, &n.Fingerprint); err != nil {
			return nil, fmt.Errorf("unmarshal fingerprint for %s: %w", n.ID, err)
		}
	}
	if n.Fingerprint.NucleusEntity == "" {
		n.Fingerprint.NucleusEntity = nucleus
	}
	if len(salienceRaw) > 0 {
		if err := json.Unmarshal(salienceRaw, &n.EntitySalience); err != nil {
			return nil, fmt.Errorf("unmarshal entity salience for %s: %w", n.ID, err)
		}
	}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &n.History); err != nil {
			return nil, fmt.Errorf("unmarshal lifecycle history for %s: %w", n.ID, err)
		}
	}
	if len(mergedFromRaw) > 0 {
		if err := json.Unmarshal(mergedFromRaw, &n.MergedFrom); err != nil {
			return nil, fmt.Errorf("unmarshal merge provenance for %s: %w", n.ID, err)
		}
	}

	parsedState, err := narrative.ParseState(state)
	if err != nil {
		return nil, fmt.Errorf("narrative %s: %w", n.ID, err)
	}
	n.State = parsedState
	n.Momentum = narrative.Momentum(momentum)
	return &n, nil
}

func scanNarratives(rows *Rows) ([]*narrative.Narrative, error) {
	var out []*narrative.Narrative
	for rows.Next() {
		n, err := scanNarrative(rows)
		if err != nil {
			return nil, fmt.Errorf("scan narrative row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
