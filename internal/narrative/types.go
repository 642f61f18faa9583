package narrative

import (
	"fmt"
	"time"
)

// Extraction is the structured output the entity-extraction collaborator
// produces for one article. NucleusEntity may be empty when extraction
// could not identify a primary subject; such articles never cluster.
type Extraction struct {
	NucleusEntity string             `json:"nucleus_entity"`
	Actors        map[string]float64 `json:"actors"`
	Actions       []string           `json:"actions"`
	Tensions      []string           `json:"tensions"`
	Summary       string             `json:"summary"`
}

// Article is an immutable ingested article with its extraction attached.
type Article struct {
	ID          string
	Source      string
	Title       string
	PublishedAt time.Time
	Extraction  Extraction
}

// ArticleRef is the minimal per-article record a narrative keeps: enough
// to compute velocity and enforce date-derived invariants without loading
// article bodies.
type ArticleRef struct {
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
}

const (
	maxTopActors  = 5
	maxKeyActions = 3
)

// Fingerprint is the comparable signature of a cluster or narrative.
type Fingerprint struct {
	NucleusEntity string             `json:"nucleus_entity"`
	TopActors     map[string]float64 `json:"top_actors"`
	KeyActions    []string           `json:"key_actions"`
	ComputedAt    time.Time          `json:"computed_at"`
}

// State is the closed lifecycle state set.
type State string

const (
	StateEmerging    State = "emerging"
	StateRising      State = "rising"
	StateHot         State = "hot"
	StateCooling     State = "cooling"
	StateDormant     State = "dormant"
	StateEcho        State = "echo"
	StateReactivated State = "reactivated"
)

var allStates = []State{
	StateEmerging,
	StateRising,
	StateHot,
	StateCooling,
	StateDormant,
	StateEcho,
	StateReactivated,
}

// ParseState maps a stored string onto the closed state set.
func ParseState(raw string) (State, error) {
	for _, s := range allStates {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown lifecycle state %q", raw)
}

// Valid reports whether s is a member of the closed state set.
func (s State) Valid() bool {
	for _, known := range allStates {
		if s == known {
			return true
		}
	}
	return false
}

// ActiveStates are the states exposed by the "active" query view.
var ActiveStates = []State{StateEmerging, StateRising, StateHot, StateCooling, StateReactivated}

// Momentum is the velocity trend between the earlier and later halves of
// a narrative's recent activity.
type Momentum string

const (
	MomentumGrowing   Momentum = "growing"
	MomentumDeclining Momentum = "declining"
	MomentumStable    Momentum = "stable"
	MomentumUnknown   Momentum = "unknown"
)

// LifecycleEntry is one row of a narrative's lifecycle history log.
type LifecycleEntry struct {
	State        State     `json:"state"`
	At           time.Time `json:"at"`
	ArticleCount int       `json:"article_count"`
	Velocity     float64   `json:"velocity"`
}

// MergeRecord is provenance retained on the surviving side of a merge.
type MergeRecord struct {
	MergedFrom string    `json:"merged_from"`
	MergedAt   time.Time `json:"merged_at"`
}

// Narrative is the persistent record of one ongoing story.
type Narrative struct {
	ID                 string
	Title              string
	Summary            string
	Fingerprint        Fingerprint
	Articles           []ArticleRef
	EntitySalience     map[string]float64
	State              State
	History            []LifecycleEntry
	FirstSeen          time.Time
	LastUpdated        time.Time
	MentionVelocity    float64
	Momentum           Momentum
	ReawakeningCount   int
	ResurrectionVel    float64
	NeedsSummaryUpdate bool
	MergedFrom         []MergeRecord
	CreatedAt          time.Time
}

// ArticleCount returns the number of distinct constituent articles.
func (n *Narrative) ArticleCount() int {
	return len(n.Articles)
}

// HasArticle reports whether the article id is already part of the narrative.
func (n *Narrative) HasArticle(id string) bool {
	for _, ref := range n.Articles {
		if ref.ID == id {
			return true
		}
	}
	return false
}

// Validate enforces the stored-narrative invariants. It is called before
// every create and merge write; a violation rejects the whole operation.
func (n *Narrative) Validate() error {
	if n.Fingerprint.NucleusEntity == "" {
		return fmt.Errorf("narrative %s: %w", n.ID, ErrEmptyNucleus)
	}
	if !n.State.Valid() {
		return fmt.Errorf("narrative %s: invalid lifecycle state %q", n.ID, n.State)
	}
	if n.LastUpdated.Before(n.FirstSeen) {
		return fmt.Errorf("narrative %s: first_seen %s after last_updated %s",
			n.ID, n.FirstSeen.Format(time.RFC3339), n.LastUpdated.Format(time.RFC3339))
	}
	seen := make(map[string]struct{}, len(n.Articles))
	for _, ref := range n.Articles {
		if _, dup := seen[ref.ID]; dup {
			return fmt.Errorf("narrative %s: duplicate article id %s", n.ID, ref.ID)
		}
		seen[ref.ID] = struct{}{}
	}
	return nil
}
