package askworker

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/chatlore-backend/internal/types"
)

func TestNewAskReportWithoutSearchSignals(t *testing.T) {
	job := &types.AskJob{ID: uuid.New(), ChatID: -100500}
	r := newAskReport(job, "кто взял ключи", nil, nil)

	if r.JobID != job.ID || r.ChatID != -100500 || r.Question != "кто взял ключи" {
		t.Fatalf("report identity fields: got=%+v", r)
	}
	if r.Intent != "" || r.Confidence != types.ConfidenceNone || r.ResultCount != 0 {
		t.Fatalf("missing signals must stay zero: got=%+v", r)
	}
}

func TestNewAskReportCarriesSearchSignals(t *testing.T) {
	job := &types.AskJob{ID: uuid.New(), ChatID: 1}
	classified := &types.ClassifiedQuery{Intent: types.IntentFactual}
	resp := &types.SearchResponse{
		Confidence:       types.ConfidenceMedium,
		ConfidenceReason: "fused score 0.0214",
		Results:          make([]types.SearchResult, 3),
	}
	r := newAskReport(job, "где гараж", classified, resp)

	if r.Intent != types.IntentFactual {
		t.Fatalf("intent: want=%v got=%v", types.IntentFactual, r.Intent)
	}
	if r.Confidence != types.ConfidenceMedium || r.ConfidenceReason != "fused score 0.0214" {
		t.Fatalf("confidence: got=%+v", r)
	}
	if r.ResultCount != 3 {
		t.Fatalf("result count: want=3 got=%d", r.ResultCount)
	}
}
