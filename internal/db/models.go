package db

import (
	"encoding/json"
	"time"
)

// Article maps narratives.articles. Articles are immutable after ingest;
// the engine only ever reads them.
type Article struct {
	ArticleID    int64      `gorm:"column:article_id;primaryKey;autoIncrement"`
	ArticleUUID  string     `gorm:"column:article_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Source       string     `gorm:"column:source;type:text;not null;uniqueIndex:uq_articles_source_item"`
	SourceItemID string     `gorm:"column:source_item_id;type:text;not null;uniqueIndex:uq_articles_source_item"`
	Title        string     `gorm:"column:title;type:text;not null"`
	URL          *string    `gorm:"column:url;type:text"`
	BodyText     string     `gorm:"column:body_text;type:text;not null;default:''"`
	Language     string     `gorm:"column:language;type:text;not null;default:und"`
	PublishedAt  *time.Time `gorm:"column:published_at;type:timestamptz"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "narratives.articles" }

// ArticleExtraction maps narratives.article_extractions, the collaborator's
// structured output for one article. An empty nucleus_entity records that
// extraction ran and found no story subject.
type ArticleExtraction struct {
	ExtractionID  int64           `gorm:"column:extraction_id;primaryKey;autoIncrement"`
	ArticleUUID   string          `gorm:"column:article_uuid;type:uuid;not null;unique"`
	NucleusEntity string          `gorm:"column:nucleus_entity;type:text;not null;default:''"`
	Actors        json.RawMessage `gorm:"column:actors;type:jsonb"`
	Actions       json.RawMessage `gorm:"column:actions;type:jsonb"`
	Tensions      json.RawMessage `gorm:"column:tensions;type:jsonb"`
	Summary       string          `gorm:"column:summary;type:text;not null;default:''"`
	ModelName     string          `gorm:"column:model_name;type:text;not null;default:''"`
	ExtractedAt   time.Time       `gorm:"column:extracted_at;type:timestamptz;not null;default:now()"`
}

func (ArticleExtraction) TableName() string { return "narratives.article_extractions" }

// Narrative maps narratives.narratives. The partial unique index on
// (nucleus_entity) WHERE status = 'active' (see post_automigrate.sql) is
// the storage half of the twin-narrative defense.
type Narrative struct {
	NarrativeID          int64           `gorm:"column:narrative_id;primaryKey;autoIncrement"`
	NarrativeUUID        string          `gorm:"column:narrative_uuid;type:uuid;not null;unique"`
	Title                string          `gorm:"column:title;type:text;not null"`
	Summary              string          `gorm:"column:summary;type:text;not null;default:''"`
	NucleusEntity        string          `gorm:"column:nucleus_entity;type:text;not null"`
	Fingerprint          json.RawMessage `gorm:"column:fingerprint;type:jsonb;not null"`
	EntitySalience       json.RawMessage `gorm:"column:entity_salience;type:jsonb"`
	LifecycleState       string          `gorm:"column:lifecycle_state;type:text;not null"`
	LifecycleHistory     json.RawMessage `gorm:"column:lifecycle_history;type:jsonb"`
	FirstSeen            time.Time       `gorm:"column:first_seen;type:timestamptz;not null"`
	LastUpdated          time.Time       `gorm:"column:last_updated;type:timestamptz;not null"`
	MentionVelocity      float64         `gorm:"column:mention_velocity;type:double precision;not null;default:0"`
	Momentum             string          `gorm:"column:momentum;type:text;not null;default:unknown"`
	ReawakeningCount     int             `gorm:"column:reawakening_count;type:integer;not null;default:0"`
	ResurrectionVelocity float64         `gorm:"column:resurrection_velocity;type:double precision;not null;default:0"`
	NeedsSummaryUpdate   bool            `gorm:"column:needs_summary_update;not null;default:false"`
	MergedFrom           json.RawMessage `gorm:"column:merged_from;type:jsonb"`
	Status               string          `gorm:"column:status;type:text;not null;default:active"`
	CreatedAt            time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Narrative) TableName() string { return "narratives.narratives" }

// NarrativeArticle maps narratives.narrative_articles. The unique
// constraint on article_uuid keeps an article in exactly one narrative.
type NarrativeArticle struct {
	NarrativeArticleID int64     `gorm:"column:narrative_article_id;primaryKey;autoIncrement"`
	NarrativeUUID      string    `gorm:"column:narrative_uuid;type:uuid;not null;index"`
	ArticleUUID        string    `gorm:"column:article_uuid;type:uuid;not null;unique"`
	PublishedAt        time.Time `gorm:"column:published_at;type:timestamptz;not null"`
	MatchedAt          time.Time `gorm:"column:matched_at;type:timestamptz;not null;default:now()"`
}

func (NarrativeArticle) TableName() string { return "narratives.narrative_articles" }

// MergeRecord maps narratives.merge_records, the provenance kept when a
// losing narrative is folded into a primary.
type MergeRecord struct {
	MergeID        int64     `gorm:"column:merge_id;primaryKey;autoIncrement"`
	WinnerUUID     string    `gorm:"column:winner_uuid;type:uuid;not null;index"`
	MergedFromUUID string    `gorm:"column:merged_from_uuid;type:uuid;not null"`
	ArticleCount   int       `gorm:"column:article_count;type:integer;not null;default:0"`
	MergedAt       time.Time `gorm:"column:merged_at;type:timestamptz;not null;default:now()"`
}

func (MergeRecord) TableName() string { return "narratives.merge_records" }

// SummaryTask maps narratives.summary_tasks, the outbox for out-of-band
// text regeneration. At most one open task per narrative (partial unique
// index in post_automigrate.sql).
type SummaryTask struct {
	TaskID        int64      `gorm:"column:task_id;primaryKey;autoIncrement"`
	NarrativeUUID string     `gorm:"column:narrative_uuid;type:uuid;not null"`
	Reason        string     `gorm:"column:reason;type:text;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	ProcessedAt   *time.Time `gorm:"column:processed_at;type:timestamptz"`
}

func (SummaryTask) TableName() string { return "narratives.summary_tasks" }

func autoMigrateModels() []any {
	return []any{
		&Article{},
		&ArticleExtraction{},
		&Narrative{},
		&NarrativeArticle{},
		&MergeRecord{},
		&SummaryTask{},
	}
}
