package classify

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/yungbote/chatlore-backend/internal/clients/llm"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const classifySystemPrompt = `Ты — классификатор вопросов к групповому чату.
Верни ТОЛЬКО JSON без пояснений:
{
  "intent": "personal_self|personal_other|factual|event|temporal|comparison|multi_entity",
  "confidence": 0.0-1.0,
  "entities": [{"type": "person|topic|object", "text": "...", "mentioned_as": "..."}],
  "mentioned_people": ["..."],
  "temporal_ref": {"text": "...", "type": "relative|absolute", "relative_days": 0},
  "reasoning": "..."
}
personal_self — вопрос о самом спрашивающем; personal_other — о другом участнике;
temporal — привязан ко времени; comparison — сравнение; multi_entity — о нескольких
участниках; event — о событии; factual — всё остальное.`

// Classifier maps a question onto the fixed intent taxonomy. The language
// model does the real work; a pattern fallback keeps the pipeline alive when
// it fails or returns garbage.
type Classifier struct {
	router *llm.Router
	log    *logger.Logger
}

func NewClassifier(router *llm.Router, baseLog *logger.Logger) *Classifier {
	return &Classifier{router: router, log: baseLog.With("service", "IntentClassifier")}
}

func (c *Classifier) Classify(ctx context.Context, question string) *types.ClassifiedQuery {
	completion, err := c.router.Complete(ctx, classifySystemPrompt, question, 0.0)
	if err != nil {
		c.log.Warn("classification call failed, using fallback", "error", err)
		return FallbackClassify(question)
	}
	var parsed types.ClassifiedQuery
	if err := llm.UnmarshalInto(completion.Content, &parsed); err != nil {
		c.log.Warn("classification parse failed, using fallback", "error", err)
		return FallbackClassify(question)
	}
	if !validIntent(parsed.Intent) {
		c.log.Warn("classification returned unknown intent, using fallback", "intent", string(parsed.Intent))
		return FallbackClassify(question)
	}
	return &parsed
}

func validIntent(i types.Intent) bool {
	switch i {
	case types.IntentPersonalSelf, types.IntentPersonalOther, types.IntentFactual,
		types.IntentEvent, types.IntentTemporal, types.IntentComparison, types.IntentMultiEntity:
		return true
	}
	return false
}

var (
	handleRe = regexp.MustCompile(`@([A-Za-z0-9_]{3,})`)

	// Checked as whole words so "тебя" does not match "я".
	selfWords = map[string]struct{}{
		"я": {}, "мне": {}, "меня": {}, "мной": {},
		"мой": {}, "моя": {}, "мои": {}, "моё": {}, "мое": {},
	}

	// Literal temporal markers mapped to how many days back they reach.
	temporalMarkers = []struct {
		marker string
		days   int
	}{
		{"сегодня", 0},
		{"вчера", 1},
		{"позавчера", 2},
		{"на этой неделе", 7},
		{"на прошлой неделе", 14},
		{"неделю назад", 7},
		{"в этом месяце", 30},
		{"в прошлом месяце", 60},
		{"месяц назад", 30},
	}
)

// FallbackClassify is the pattern classifier used when the model call fails:
// self-pronouns win, then @handles, then temporal markers, else factual.
func FallbackClassify(question string) *types.ClassifiedQuery {
	lower := strings.ToLower(question)

	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if _, ok := selfWords[word]; ok {
			return &types.ClassifiedQuery{
				Intent:     types.IntentPersonalSelf,
				Confidence: 0.5,
				Reasoning:  "fallback: self pronoun",
			}
		}
	}

	if handles := handleRe.FindAllStringSubmatch(question, -1); len(handles) > 0 {
		people := make([]string, 0, len(handles))
		entities := make([]types.QueryEntity, 0, len(handles))
		for _, h := range handles {
			people = append(people, h[1])
			entities = append(entities, types.QueryEntity{
				Type:        types.EntityPerson,
				Text:        h[1],
				MentionedAs: h[0],
			})
		}
		return &types.ClassifiedQuery{
			Intent:          types.IntentPersonalOther,
			Confidence:      0.5,
			Entities:        entities,
			MentionedPeople: people,
			Reasoning:       "fallback: @handle",
		}
	}

	for _, t := range temporalMarkers {
		if strings.Contains(lower, t.marker) {
			return &types.ClassifiedQuery{
				Intent:     types.IntentTemporal,
				Confidence: 0.5,
				TemporalRef: &types.TemporalRef{
					Text:         t.marker,
					Type:         types.TemporalRelative,
					RelativeDays: t.days,
				},
				Reasoning: "fallback: temporal marker",
			}
		}
	}

	return &types.ClassifiedQuery{
		Intent:     types.IntentFactual,
		Confidence: 0.3,
		Reasoning:  "fallback: default",
	}
}
