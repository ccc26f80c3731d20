package views

import (
	"fmt"
	"strings"

	"github.com/hravel/huddl/internal/store"
	"github.com/rivo/tview"
)

// MessageThread displays one conversation's messages plus the typing line.
type MessageThread struct {
	*tview.TextView
}

// NewMessageThread creates the thread view.
func NewMessageThread() *MessageThread {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")
	return &MessageThread{TextView: tv}
}

// SetConversationName updates the title.
func (mt *MessageThread) SetConversationName(name string) {
	mt.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update refreshes the thread. Messages arrive oldest first; the typing set
// renders as a single line under the newest message.
func (mt *MessageThread) Update(msgs []store.Message, typing []store.TypingUser) {
	mt.Clear()

	for _, m := range msgs {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		if m.FromMe {
			sender = "You"
		}

		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
			sender, formatTimestamp(m.Timestamp), statusGlyph(m), m.Body)
		_, _ = fmt.Fprint(mt, line)
	}

	if line := typingLine(typing); line != "" {
		_, _ = fmt.Fprintf(mt, "[::d]%s[-:-:-]\n", line)
	}

	mt.ScrollToEnd()
}

// statusGlyph marks the viewer's own messages with their delivery state.
func statusGlyph(m store.Message) string {
	if !m.FromMe {
		return ""
	}
	switch m.Status {
	case store.StatusSending:
		return " [yellow]~[-]"
	case store.StatusSent:
		return " [grey]v[-]"
	case store.StatusDelivered:
		return " [grey]vv[-]"
	case store.StatusRead:
		return " [blue]vv[-]"
	case store.StatusFailed:
		return " [red]! failed (ctrl-r to retry)[-]"
	}
	return ""
}

func typingLine(users []store.TypingUser) string {
	if len(users) == 0 {
		return ""
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		name := u.DisplayName
		if name == "" {
			name = u.UserID
		}
		names = append(names, name)
	}
	if len(names) == 1 {
		return names[0] + " is typing..."
	}
	return strings.Join(names, ", ") + " are typing..."
}
