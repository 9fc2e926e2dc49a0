package dialogs

import (
	"strings"
	"time"

	"github.com/yungbote/chatlore-backend/internal/types"
)

const (
	// A silence longer than this always starts a new dialog.
	dialogGap = 30 * time.Minute

	// Topic markers only split established dialogs.
	topicShiftMinLen = 5
	// Monologue-to-dialog transitions split only long dialogs.
	monologueMinLen  = 8
	monologueRunSize = 5

	minWindowSize = 5
	maxWindowSize = 15
	windowStride  = 3
)

var topicShiftMarkers = []string{
	"кстати",
	"btw",
	"другая тема",
	"сменим тему",
	"не в тему",
	"offtop",
	"оффтоп",
	"вопрос не по теме",
}

// Dialog is one contiguous conversational run.
type Dialog struct {
	Messages []*types.Message
}

// Segment splits a chronological message stream into dialogs using three
// boundary rules: time gap, topic-shift marker, participant-pattern shift.
func Segment(msgs []*types.Message) []Dialog {
	var dialogs []Dialog
	var current []*types.Message

	flush := func() {
		if len(current) > 0 {
			dialogs = append(dialogs, Dialog{Messages: current})
			current = nil
		}
	}

	for _, m := range msgs {
		if m.BodyText() == "" {
			continue
		}
		if len(current) == 0 {
			current = append(current, m)
			continue
		}
		last := current[len(current)-1]
		switch {
		case m.DateUTC.Sub(last.DateUTC) > dialogGap:
			flush()
		case len(current) >= topicShiftMinLen && hasTopicShiftMarker(m.BodyText()):
			flush()
		case len(current) >= monologueMinLen && breaksMonologue(current, m):
			flush()
		}
		current = append(current, m)
	}
	flush()
	return dialogs
}

func hasTopicShiftMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range topicShiftMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// breaksMonologue reports a participant shift: the last five messages come
// from one user and the new message from another.
func breaksMonologue(current []*types.Message, next *types.Message) bool {
	if len(current) < monologueRunSize {
		return false
	}
	run := current[len(current)-monologueRunSize:]
	author := run[0].FromUserID
	for _, m := range run[1:] {
		if m.FromUserID != author {
			return false
		}
	}
	return next.FromUserID != author
}

// Window is one sliding slice of a dialog, centered at its median message.
type Window struct {
	Messages []*types.Message
}

func (w Window) Center() *types.Message { return w.Messages[len(w.Messages)/2] }

func (w Window) Start() *types.Message { return w.Messages[0] }

func (w Window) End() *types.Message { return w.Messages[len(w.Messages)-1] }

// Windows slices a dialog into embedding windows. Dialogs shorter than five
// messages produce nothing; up to fifteen messages fit in a single window;
// longer dialogs slide a fifteen-wide window with stride three, closing with
// a right-aligned window so the tail is never left uncovered.
func (d Dialog) Windows() []Window {
	n := len(d.Messages)
	if n < minWindowSize {
		return nil
	}
	if n <= maxWindowSize {
		return []Window{{Messages: d.Messages}}
	}
	var out []Window
	for start := 0; start < n; start += windowStride {
		end := start + maxWindowSize
		if end >= n {
			// Tail too short for a full slide; cover it with one
			// right-aligned window and stop.
			out = append(out, Window{Messages: d.Messages[n-maxWindowSize:]})
			break
		}
		out = append(out, Window{Messages: d.Messages[start:end]})
	}
	return out
}

// Text renders the window as newline-joined "{author}: {text}" lines.
func (w Window) Text() string {
	var b strings.Builder
	for i, m := range w.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.AuthorLabel())
		b.WriteString(": ")
		b.WriteString(m.BodyText())
	}
	return b.String()
}
