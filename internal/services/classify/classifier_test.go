package classify

import (
	"testing"

	"github.com/yungbote/chatlore-backend/internal/types"
)

func TestFallbackClassifySelfPronoun(t *testing.T) {
	cases := []string{
		"что я говорил про отпуск?",
		"Когда мне обещали вернуть долг",
		"кто упоминал меня на прошлой неделе", // self pronoun beats temporal
	}
	for _, q := range cases {
		got := FallbackClassify(q)
		if got.Intent != types.IntentPersonalSelf {
			t.Fatalf("%q: want=%v got=%v", q, types.IntentPersonalSelf, got.Intent)
		}
		if got.Confidence != 0.5 {
			t.Fatalf("%q: confidence want=0.5 got=%v", q, got.Confidence)
		}
	}

	// "тебя" must not trip the whole-word check for "я".
	got := FallbackClassify("что у тебя нового")
	if got.Intent == types.IntentPersonalSelf {
		t.Fatalf("substring pronoun misfire on %q", "тебя")
	}
}

func TestFallbackClassifyHandles(t *testing.T) {
	got := FallbackClassify("что @ivan_petrov и @masha88 решили по даче?")
	if got.Intent != types.IntentPersonalOther {
		t.Fatalf("intent: want=%v got=%v", types.IntentPersonalOther, got.Intent)
	}
	if len(got.MentionedPeople) != 2 || got.MentionedPeople[0] != "ivan_petrov" || got.MentionedPeople[1] != "masha88" {
		t.Fatalf("mentioned people: got=%v", got.MentionedPeople)
	}
	if len(got.Entities) != 2 || got.Entities[0].Type != types.EntityPerson || got.Entities[0].MentionedAs != "@ivan_petrov" {
		t.Fatalf("entities: got=%+v", got.Entities)
	}

	// Handles shorter than three characters are ignored.
	got = FallbackClassify("спроси у @ab про это")
	if got.Intent == types.IntentPersonalOther {
		t.Fatalf("two-character handle must not classify as personal_other")
	}
}

func TestFallbackClassifyTemporal(t *testing.T) {
	cases := []struct {
		question string
		wantDays int
	}{
		{"о чём говорили сегодня?", 0},
		{"что обсуждали вчера вечером", 1},
		{"какие планы были на прошлой неделе", 14},
		{"что решили в прошлом месяце", 60},
	}
	for _, c := range cases {
		got := FallbackClassify(c.question)
		if got.Intent != types.IntentTemporal {
			t.Fatalf("%q: want=%v got=%v", c.question, types.IntentTemporal, got.Intent)
		}
		if got.TemporalRef == nil || got.TemporalRef.RelativeDays != c.wantDays {
			t.Fatalf("%q: temporal ref got=%+v", c.question, got.TemporalRef)
		}
	}
}

func TestFallbackClassifyDefault(t *testing.T) {
	got := FallbackClassify("где находится дача Петровых")
	if got.Intent != types.IntentFactual {
		t.Fatalf("intent: want=%v got=%v", types.IntentFactual, got.Intent)
	}
	if got.Confidence != 0.3 {
		t.Fatalf("confidence: want=0.3 got=%v", got.Confidence)
	}
}

func TestValidIntent(t *testing.T) {
	for _, i := range []types.Intent{
		types.IntentPersonalSelf, types.IntentPersonalOther, types.IntentFactual,
		types.IntentEvent, types.IntentTemporal, types.IntentComparison, types.IntentMultiEntity,
	} {
		if !validIntent(i) {
			t.Fatalf("intent %q must be valid", i)
		}
	}
	if validIntent(types.Intent("banana")) {
		t.Fatalf("unknown intent accepted")
	}
}
