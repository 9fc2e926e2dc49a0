package types

import "testing"

func TestIdempotencyKeys(t *testing.T) {
	if got := AskIdempotencyKey(-100500, 42, CommandAsk); got != "-100500:42:ask" {
		t.Fatalf("ask key: got=%q", got)
	}
	if got := AskIdempotencyKey(-100500, 42, CommandSmart); got != "-100500:42:smart" {
		t.Fatalf("smart key: got=%q", got)
	}
	if got := TruthIdempotencyKey(-100500, 42); got != "-100500:42:truth" {
		t.Fatalf("truth key: got=%q", got)
	}
	// Same message, different command: distinct keys so /ask and /smart on
	// one message never dedupe against each other.
	if AskIdempotencyKey(1, 2, CommandAsk) == AskIdempotencyKey(1, 2, CommandSmart) {
		t.Fatalf("ask and smart keys must differ")
	}
}
