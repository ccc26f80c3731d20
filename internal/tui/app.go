// Package tui is the terminal frontend. It renders store snapshots and
// translates key events into engine calls; it holds no chat state of its own.
package tui

import (
	"context"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/hravel/huddl/internal/client"
	"github.com/hravel/huddl/internal/store"
	"github.com/hravel/huddl/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	engine    *client.Client
	convList  *views.ConversationList
	thread    *views.MessageThread
	composer  *views.Composer
	people    *views.ParticipantList
	statusBar *views.StatusBar
	ctx       context.Context
	cancel    context.CancelFunc
	unsub     func()
}

// NewApp creates the TUI application.
func NewApp(engine *client.Client, profile string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		engine:    engine,
		convList:  views.NewConversationList(),
		thread:    views.NewMessageThread(),
		composer:  views.NewComposer(),
		people:    views.NewParticipantList(),
		statusBar: views.NewStatusBar(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profile)
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if id := a.convList.SelectedConversation(); id != "" {
			a.openConversation(id)
		}
	})

	a.people.SetSelectedFunc(func(row, col int) {
		id := a.people.SelectedParticipant()
		if id == "" {
			return
		}
		go func() {
			conv, err := a.engine.StartDirectConversation(a.ctx, id)
			if err != nil {
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetFlash("Start chat failed: " + err.Error())
				})
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.openConversation(conv.ID)
			})
		}()
	})

	a.composer.SetOnSend(func(text string) {
		convID := a.engine.Snapshot().ActiveConversation
		if convID == "" {
			return
		}
		go func() {
			a.engine.StopTyping(a.ctx, convID)
			if _, err := a.engine.SendMessage(a.ctx, convID, text); err != nil {
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetFlash("Send failed: " + err.Error())
				})
			}
		}()
	})

	a.composer.SetOnType(func() {
		convID := a.engine.Snapshot().ActiveConversation
		if convID == "" {
			return
		}
		go a.engine.StartTyping(a.ctx, convID)
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("conversations", a.convList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("people", a.people, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "chat", "people":
				a.pages.SwitchToPage("conversations")
				a.app.SetFocus(a.convList)
				return nil
			}
		}

		if event.Key() == tcell.KeyCtrlR && currentPage == "chat" {
			a.retryLastFailed()
			return nil
		}

		// Let the composer handle everything else while it has focus.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'q':
				a.app.Stop()
				return nil
			case 'p':
				if currentPage == "conversations" {
					a.pages.SwitchToPage("people")
					a.app.SetFocus(a.people)
					return nil
				}
			case 'r':
				go func() { _ = a.engine.Refresh(a.ctx) }()
				return nil
			case 'i':
				if currentPage == "chat" {
					a.app.SetFocus(a.composer.InputField)
					return nil
				}
			}
		}

		return event
	})
}

func (a *App) openConversation(id string) {
	a.engine.OpenConversation(a.ctx, id)

	snap := a.engine.Snapshot()
	name := id
	for _, c := range snap.Conversations {
		if c.ID == id {
			if c.Name != "" {
				name = c.Name
			}
			break
		}
	}
	a.thread.SetConversationName(name)
	a.thread.Update(snap.Messages[id], snap.Typing[id])
	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.composer.InputField)
}

// retryLastFailed resends the newest failed message in the open conversation.
func (a *App) retryLastFailed() {
	snap := a.engine.Snapshot()
	convID := snap.ActiveConversation
	if convID == "" {
		return
	}
	msgs := snap.Messages[convID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].FromMe && msgs[i].Status == store.StatusFailed {
			tempID := msgs[i].ID
			go func() {
				if err := a.engine.RetrySend(a.ctx, tempID); err != nil {
					a.app.QueueUpdateDraw(func() {
						a.statusBar.SetFlash("Retry failed: " + err.Error())
					})
				}
			}()
			return
		}
	}
}

// render repaints whichever page is showing from one snapshot.
func (a *App) render(snap store.Snapshot) {
	currentPage, _ := a.pages.GetFrontPage()

	a.statusBar.SetConnection(snap.Connection)
	a.statusBar.SetLoading(snap.Loading)
	a.statusBar.SetFlash(snap.LastError)

	switch currentPage {
	case "conversations":
		a.convList.Update(snap.Conversations)
	case "chat":
		if id := snap.ActiveConversation; id != "" {
			a.thread.Update(snap.Messages[id], snap.Typing[id])
		}
	case "people":
		a.people.Update(snap.Participants)
	}
}

// Run subscribes to engine snapshots and starts the event loop.
func (a *App) Run() error {
	a.unsub = a.engine.Subscribe(func(snap store.Snapshot) {
		a.app.QueueUpdateDraw(func() {
			a.render(snap)
		})
	})
	a.render(a.engine.Snapshot())

	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	if a.unsub != nil {
		a.unsub()
	}
	a.cancel()
	a.app.Stop()
}
