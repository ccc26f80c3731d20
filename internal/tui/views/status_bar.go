package views

import (
	"fmt"
	"time"

	"github.com/hravel/huddl/internal/store"
	"github.com/rivo/tview"
)

// StatusBar displays profile, connection state, and transient errors.
type StatusBar struct {
	*tview.TextView
	profile    string
	connection store.ConnectionState
	loading    bool
	flash      string
}

// NewStatusBar creates the status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetConnection updates the connection display.
func (sb *StatusBar) SetConnection(state store.ConnectionState) {
	sb.connection = state
	sb.render()
}

// SetLoading updates the loading indicator.
func (sb *StatusBar) SetLoading(loading bool) {
	sb.loading = loading
	sb.render()
}

// SetFlash sets a transient message, usually the last error.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	loadIcon := " "
	if sb.loading {
		loadIcon = "[green]~[-]"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s %s | %s",
		sb.profile, connColor(sb.connection), loadIcon, time.Now().Format("15:04"))
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", sb.flash)
	}

	_, _ = fmt.Fprint(sb, line)
}

func connColor(state store.ConnectionState) string {
	switch state {
	case store.ConnOnline:
		return "[green]online[-]"
	case store.ConnConnecting, store.ConnReconnecting:
		return fmt.Sprintf("[yellow]%s[-]", state)
	case store.ConnFailed:
		return "[red]failed[-]"
	default:
		return "[grey]offline[-]"
	}
}
