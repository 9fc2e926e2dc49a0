package types

// Intent is the fixed classification taxonomy for incoming questions.
type Intent string

const (
	IntentPersonalSelf  Intent = "personal_self"
	IntentPersonalOther Intent = "personal_other"
	IntentFactual       Intent = "factual"
	IntentEvent         Intent = "event"
	IntentTemporal      Intent = "temporal"
	IntentComparison    Intent = "comparison"
	IntentMultiEntity   Intent = "multi_entity"
)

// Entity types referenced by a classified question.
const (
	EntityPerson = "person"
	EntityTopic  = "topic"
	EntityObject = "object"
)

// Temporal reference types.
const (
	TemporalRelative = "relative"
	TemporalAbsolute = "absolute"
)

type QueryEntity struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	MentionedAs string `json:"mentioned_as,omitempty"`
}

type TemporalRef struct {
	Text         string `json:"text"`
	Type         string `json:"type"`
	RelativeDays int    `json:"relative_days,omitempty"`
}

// ClassifiedQuery is the transient output of the intent classifier.
type ClassifiedQuery struct {
	Intent          Intent        `json:"intent"`
	Confidence      float64       `json:"confidence"`
	Entities        []QueryEntity `json:"entities,omitempty"`
	MentionedPeople []string      `json:"mentioned_people,omitempty"`
	TemporalRef     *TemporalRef  `json:"temporal_ref,omitempty"`
	Reasoning       string        `json:"reasoning,omitempty"`
}

// NeedsSpecializedSearch reports whether the query should bypass the default
// fusion pipeline in favor of a pool-restricted strategy.
func (q *ClassifiedQuery) NeedsSpecializedSearch() bool {
	if q == nil {
		return false
	}
	switch q.Intent {
	case IntentPersonalSelf:
		return true
	case IntentPersonalOther:
		return len(q.MentionedPeople) > 0
	case IntentTemporal:
		return q.TemporalRef != nil && q.TemporalRef.Text != ""
	case IntentComparison:
		return len(q.Entities) >= 2
	case IntentMultiEntity:
		return len(q.MentionedPeople) >= 2
	default:
		return false
	}
}
