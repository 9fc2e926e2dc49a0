package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/yungbote/chatlore-backend/internal/types"
)

var groupBase = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func groupMsg(id, user int64, offset time.Duration, text string) *types.Message {
	return &types.Message{
		ChatID:     42,
		ID:         id,
		FromUserID: user,
		Text:       &text,
		DateUTC:    groupBase.Add(offset),
	}
}

func groupIDs(g Group) []int64 {
	out := make([]int64, 0, len(g.Messages))
	for _, m := range g.Messages {
		out = append(out, m.ID)
	}
	return out
}

func TestGroupMessagesSplitsOnAuthorChange(t *testing.T) {
	msgs := []*types.Message{
		groupMsg(1, 10, 0, "раз"),
		groupMsg(2, 10, time.Minute, "два"),
		groupMsg(3, 11, 2*time.Minute, "другой человек"),
		groupMsg(4, 10, 3*time.Minute, "снова первый"),
	}
	groups := GroupMessages(msgs)
	if len(groups) != 3 {
		t.Fatalf("want=3 groups got=%d", len(groups))
	}
	if ids := groupIDs(groups[0]); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("first group ids: got=%v", ids)
	}
}

func TestGroupMessagesSplitsOnSpan(t *testing.T) {
	msgs := []*types.Message{
		groupMsg(1, 10, 0, "раз"),
		groupMsg(2, 10, 4*time.Minute, "два"),
		// More than five minutes after the group's first message.
		groupMsg(3, 10, 6*time.Minute, "три"),
	}
	groups := GroupMessages(msgs)
	if len(groups) != 2 {
		t.Fatalf("want=2 groups got=%d", len(groups))
	}
	if ids := groupIDs(groups[1]); len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("second group ids: got=%v", ids)
	}
}

func TestGroupMessagesCapsSize(t *testing.T) {
	var msgs []*types.Message
	for i := 0; i < 13; i++ {
		msgs = append(msgs, groupMsg(int64(i+1), 10, time.Duration(i)*time.Second, "текст"))
	}
	groups := GroupMessages(msgs)
	if len(groups) != 2 {
		t.Fatalf("want=2 groups got=%d", len(groups))
	}
	if len(groups[0].Messages) != 10 || len(groups[1].Messages) != 3 {
		t.Fatalf("group sizes: got %d and %d", len(groups[0].Messages), len(groups[1].Messages))
	}
}

func TestGroupMessagesSkipsEmpty(t *testing.T) {
	empty := ""
	msgs := []*types.Message{
		groupMsg(1, 10, 0, "текст"),
		{ChatID: 42, ID: 2, FromUserID: 10, Text: &empty, DateUTC: groupBase},
		{ChatID: 42, ID: 3, FromUserID: 10, DateUTC: groupBase},
		nil,
		groupMsg(5, 10, time.Minute, "ещё"),
	}
	groups := GroupMessages(msgs)
	if len(groups) != 1 {
		t.Fatalf("want=1 group got=%d", len(groups))
	}
	if ids := groupIDs(groups[0]); len(ids) != 2 || ids[0] != 1 || ids[1] != 5 {
		t.Fatalf("group ids: got=%v", ids)
	}
}

func TestGroupPassageText(t *testing.T) {
	name := "Вера"
	msgs := []*types.Message{
		groupMsg(1, 10, 0, "еду домой"),
		groupMsg(2, 10, time.Minute, "буду через час"),
	}
	msgs[0].DisplayName = &name
	g := Group{Messages: msgs}
	want := "Вера: еду домой\nбуду через час"
	if got := g.PassageText(); got != want {
		t.Fatalf("passage text: want=%q got=%q", want, got)
	}
}

func TestGroupMetadata(t *testing.T) {
	username := "vera_k"
	msgs := []*types.Message{
		groupMsg(100, 10, 0, "еду домой"),
		groupMsg(101, 10, 2*time.Minute, "буду через час"),
		groupMsg(102, 10, 3*time.Minute, "уже рядом"),
	}
	msgs[0].Username = &username

	raw, err := Group{Messages: msgs}.metadata()
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := meta[types.MetaUsername]; got != "vera_k" {
		t.Fatalf("username: want=%q got=%v", "vera_k", got)
	}
	if got := meta[types.MetaDateUTC]; got != "2026-07-01T09:00:00Z" {
		t.Fatalf("date: got=%v", got)
	}
	if got := meta[types.MetaStartDate]; got != "2026-07-01T09:00:00Z" {
		t.Fatalf("start date: got=%v", got)
	}
	if got := meta[types.MetaEndDate]; got != "2026-07-01T09:03:00Z" {
		t.Fatalf("end date: got=%v", got)
	}
	if got := meta[types.MetaMessageCount]; got != float64(3) {
		t.Fatalf("message count: got=%v", got)
	}
	ids, ok := meta[types.MetaMessageIDs].([]any)
	if !ok || len(ids) != 3 {
		t.Fatalf("message ids: got=%v", meta[types.MetaMessageIDs])
	}

	// Single-message groups omit the span keys.
	raw, err = Group{Messages: msgs[:1]}.metadata()
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	meta = nil
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := meta[types.MetaMessageCount]; ok {
		t.Fatalf("single-message group must not carry span keys: %v", meta)
	}
}
