package views

import (
	"github.com/hravel/huddl/internal/store"
	"github.com/rivo/tview"
)

// ParticipantList is the directory table used to start direct chats.
type ParticipantList struct {
	*tview.Table
	participants []store.Participant
}

// NewParticipantList creates the directory table.
func NewParticipantList() *ParticipantList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" People ")
	return &ParticipantList{Table: table}
}

// Update refreshes the table.
func (pl *ParticipantList) Update(participants []store.Participant) {
	pl.participants = participants
	pl.Clear()

	pl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	pl.SetCell(0, 1, tview.NewTableCell(" Role").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	pl.SetCell(0, 2, tview.NewTableCell(" Presence").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, p := range participants {
		row := i + 1
		name := p.DisplayName
		if name == "" {
			name = p.Email
		}
		pl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(1))
		pl.SetCell(row, 1, tview.NewTableCell(" "+p.Role).SetMaxWidth(20))
		pl.SetCell(row, 2, tview.NewTableCell(" "+p.Presence).SetMaxWidth(12))
	}
}

// SelectedParticipant returns the id of the highlighted row.
func (pl *ParticipantList) SelectedParticipant() string {
	row, _ := pl.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(pl.participants) {
		return pl.participants[idx].ID
	}
	return ""
}
