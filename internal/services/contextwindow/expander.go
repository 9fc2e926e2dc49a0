package contextwindow

import (
	"sort"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/repos"
	"github.com/yungbote/chatlore-backend/internal/types"
)

const (
	maxHits        = 10
	messagesBefore = 2
	messagesAfter  = 2
)

// Expander turns retrieval hits into small conversational neighborhoods so
// the answer prompt shows what was said around each hit, not just the hit.
type Expander struct {
	messages repos.MessageRepo
	log      *logger.Logger
}

func NewExpander(messages repos.MessageRepo, baseLog *logger.Logger) *Expander {
	return &Expander{messages: messages, log: baseLog.With("service", "ContextWindowExpander")}
}

// Expand fetches the neighborhood of up to ten hit ids in one query and
// merges windows that share any message.
func (e *Expander) Expand(dbc dbctx.Context, chatID int64, hitIDs []int64) ([]types.ContextWindow, error) {
	if len(hitIDs) == 0 {
		return nil, nil
	}
	if len(hitIDs) > maxHits {
		hitIDs = hitIDs[:maxHits]
	}
	rows, err := e.messages.ContextAround(dbc, chatID, hitIDs, messagesBefore, messagesAfter)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	perHit := map[int64][]repos.ContextRow{}
	var hitOrder []int64
	for _, row := range rows {
		if _, seen := perHit[row.HitID]; !seen {
			hitOrder = append(hitOrder, row.HitID)
		}
		perHit[row.HitID] = append(perHit[row.HitID], row)
	}

	// Merge windows transitively: any shared message id joins two windows.
	// A new window can bridge several existing sets, so every overlapping
	// set is folded into it in one pass; the sets stay pairwise disjoint.
	merged := make([]map[int64]repos.ContextRow, 0, len(hitOrder))
	for _, hid := range hitOrder {
		window := map[int64]repos.ContextRow{}
		for _, row := range perHit[hid] {
			window[row.ID] = row
		}
		keep := merged[:0]
		for _, existing := range merged {
			if overlaps(existing, window) {
				for id, row := range existing {
					window[id] = row
				}
				continue
			}
			keep = append(keep, existing)
		}
		merged = append(keep, window)
	}

	out := make([]types.ContextWindow, 0, len(merged))
	for _, window := range merged {
		msgs := make([]types.WindowMessage, 0, len(window))
		for _, row := range window {
			msgs = append(msgs, toWindowMessage(row))
		}
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].MessageID < msgs[j].MessageID })
		out = append(out, types.ContextWindow{Messages: msgs})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Messages[0].MessageID < out[j].Messages[0].MessageID
	})
	return out, nil
}

func overlaps(a map[int64]repos.ContextRow, b map[int64]repos.ContextRow) bool {
	for id := range b {
		if _, ok := a[id]; ok {
			return true
		}
	}
	return false
}

func toWindowMessage(row repos.ContextRow) types.WindowMessage {
	author := ""
	switch {
	case row.DisplayName != nil && *row.DisplayName != "":
		author = *row.DisplayName
	case row.Username != nil && *row.Username != "":
		author = *row.Username
	}
	text := ""
	if row.Text != nil {
		text = *row.Text
	}
	forwardOrigin := ""
	if row.IsForwarded {
		switch {
		case row.ForwardFromName != nil && *row.ForwardFromName != "":
			forwardOrigin = *row.ForwardFromName
		case row.ForwardOriginType != nil:
			forwardOrigin = *row.ForwardOriginType
		}
	}
	return types.WindowMessage{
		MessageID:     row.ID,
		Author:        author,
		Text:          text,
		Date:          row.DateUTC,
		IsForwarded:   row.IsForwarded,
		ForwardOrigin: forwardOrigin,
	}
}
