package askworker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatlore-backend/internal/types"
)

// AskReport is the per-question digest handed to the debug observer once a
// job finishes.
type AskReport struct {
	JobID            uuid.UUID
	ChatID           int64
	Question         string
	Answer           string
	Intent           types.Intent
	Confidence       types.Confidence
	ConfidenceReason string
	ResultCount      int
	Took             time.Duration
}

// Observer receives a report for every processed ask. Implementations live
// outside this service (admin chats, debug sinks); NoopObserver is wired
// when none is configured.
type Observer interface {
	AskProcessed(ctx context.Context, report AskReport)
}

type NoopObserver struct{}

func (NoopObserver) AskProcessed(context.Context, AskReport) {}

func newAskReport(job *types.AskJob, question string, classified *types.ClassifiedQuery, resp *types.SearchResponse) AskReport {
	r := AskReport{JobID: job.ID, ChatID: job.ChatID, Question: question}
	if classified != nil {
		r.Intent = classified.Intent
	}
	if resp != nil {
		r.Confidence = resp.Confidence
		r.ConfidenceReason = resp.ConfidenceReason
		r.ResultCount = len(resp.Results)
	}
	return r
}
