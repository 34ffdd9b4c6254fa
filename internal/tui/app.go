package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/srvmarket/srvchat/internal/tui/keys"
	"github.com/srvmarket/srvchat/internal/tui/model"
	"github.com/srvmarket/srvchat/internal/tui/ui"
	"github.com/srvmarket/srvchat/internal/tui/views"
)

const (
	pageConversations = "conversations"
	pageThread        = "thread"
	pageDetails       = "details"
	pageHelp          = "help"

	requestTimeout = 15 * time.Second
)

// App is the terminal front-end of a daemon profile.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	vm       *model.ViewModel
	registry *keys.Registry
	profile  string

	pages       *ui.Pages
	profileInfo *ui.ProfileInfo
	menu        *ui.Menu
	crumbs      *ui.Crumbs
	flashBar    *ui.FlashBar
	prompt      *ui.Prompt
	body        *tview.Flex
	promptShown bool

	list   *views.ConversationList
	thread *views.MessageThread
	info   *views.ConversationInfo
	help   *views.HelpView

	components map[string]ui.Component

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI for profileName on top of a daemon connection.
func NewApp(d model.Daemon, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		theme:       theme,
		vm:          model.NewViewModel(d),
		registry:    keys.NewRegistry(),
		profile:     profileName,
		pages:       ui.NewPages(),
		profileInfo: ui.NewProfileInfo(theme),
		menu:        ui.NewMenu(theme),
		crumbs:      ui.NewCrumbs(theme),
		flashBar:    ui.NewFlashBar(theme),
		prompt:      ui.NewPrompt(theme),
		list:        views.NewConversationList(theme),
		thread:      views.NewMessageThread(theme),
		info:        views.NewConversationInfo(theme),
		help:        views.NewHelpView(theme),
		ctx:         ctx,
		cancel:      cancel,
	}
	a.components = map[string]ui.Component{
		pageConversations: a.list,
		pageThread:        a.thread,
		pageDetails:       a.info,
		pageHelp:          a.help,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Handler: a.back,
	})
	a.registry.AddGlobal("help", &keys.Action{
		Key: tcell.KeyRune, Rune: '?',
		Handler: func() { a.push(pageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Key: tcell.KeyRune, Rune: ':',
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})

	a.registry.AddView(pageConversations, "filter", &keys.Action{
		Key: tcell.KeyRune, Rune: '/',
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageConversations, "clear", &keys.Action{
		Key: tcell.KeyRune, Rune: '0',
		Handler: a.list.ClearFilter,
	})
	a.registry.AddView(pageConversations, "new", &keys.Action{
		Key: tcell.KeyRune, Rune: 'n',
		Handler: func() { a.showPrompt(ui.PromptProvider) },
	})
	a.registry.AddView(pageConversations, "refresh", &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Handler: a.refresh,
	})
	a.registry.AddView(pageConversations, "readall", &keys.Action{
		Key: tcell.KeyRune, Rune: 'a',
		Handler: a.markAllRead,
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageConversations, fmt.Sprintf("jump%d", n), &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() {
				if id := a.list.IDByIndex(n); id != "" {
					a.open(id)
				}
			},
		})
	}

	a.registry.AddView(pageThread, "compose", &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, "older", &keys.Action{
		Key: tcell.KeyRune, Rune: 'o',
		Handler: a.loadOlder,
		When: func() bool {
			t := a.vm.Thread()
			return t != nil && t.HasMore
		},
	})
	a.registry.AddView(pageThread, "details", &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Handler: func() {
			a.info.Update(a.thread.Conversation())
			a.push(pageDetails)
		},
	})
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(row, _ int) {
		if id := a.list.IDByIndex(row); id != "" {
			a.open(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		a.async(func(ctx context.Context) {
			if err := a.vm.Send(ctx, text); err != nil {
				a.vm.Flash.Err(err)
				return
			}
			a.app.QueueUpdateDraw(a.thread.ClearComposer)
		})
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		case ui.PromptFilter:
			a.list.SetFilter(text)
		case ui.PromptProvider:
			a.createConversation(text)
		}
	})
	a.prompt.SetOnChange(func(mode ui.PromptMode, text string) {
		if mode == ui.PromptFilter {
			a.list.SetFilter(strings.TrimSpace(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func(stack []string) {
		titles := make(map[string]string, len(a.components))
		for name, c := range a.components {
			titles[name] = c.Name()
		}
		a.crumbs.Update(stack, titles)
		if c, ok := a.components[a.pages.Current()]; ok {
			a.menu.Update(c.Hints())
		}
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageConversations, a.list, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageDetails, a.info, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)
	a.pages.Reset(pageConversations)

	header := tview.NewFlex().
		AddItem(a.profileInfo, 0, 2, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(ui.NewLogo(a.theme), 22, 0, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.body, true)
	a.app.SetInputCapture(a.capture)
}

func (a *App) capture(event *tcell.EventKey) *tcell.EventKey {
	if a.promptShown {
		return event
	}

	if a.app.GetFocus() == a.thread.Composer() {
		if event.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		return event
	}

	if event.Key() == tcell.KeyEscape {
		a.back()
		return nil
	}

	if a.registry.HandleEvent(a.pages.Current(), event) {
		return nil
	}
	return event
}

// push shows page on top of the stack and focuses it.
func (a *App) push(page string) {
	a.pages.Push(page)
	a.focusCurrent()
}

// back leaves the current page. Leaving the last page quits.
func (a *App) back() {
	if a.pages.Depth() <= 1 {
		a.Stop()
		return
	}
	if a.pages.Pop() == pageThread {
		a.async(func(ctx context.Context) { _ = a.vm.Close(ctx) })
	}
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageConversations:
		a.app.SetFocus(a.list)
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageDetails:
		a.app.SetFocus(a.info)
	case pageHelp:
		a.app.SetFocus(a.help)
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	if a.promptShown {
		return
	}
	a.prompt.Activate(mode)
	a.body.AddItem(a.prompt, 3, 0, true)
	a.promptShown = true
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	if !a.promptShown {
		return
	}
	a.body.RemoveItem(a.prompt)
	a.promptShown = false
	a.focusCurrent()
}

// async runs fn off the UI goroutine with a request deadline.
func (a *App) async(fn func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (a *App) open(id string) {
	a.async(func(ctx context.Context) {
		if err := a.vm.Open(ctx, id); err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.Update(a.vm.Thread())
			if a.pages.Current() == pageDetails || a.pages.Current() == pageHelp {
				a.pages.Reset(pageConversations)
			}
			a.push(pageThread)
		})
	})
}

func (a *App) loadOlder() {
	a.async(func(ctx context.Context) {
		n, err := a.vm.LoadOlder(ctx)
		switch {
		case err != nil:
			a.vm.Flash.Err(err)
		case n == 0:
			a.vm.Flash.Info("No older messages")
		default:
			a.vm.Flash.Info(fmt.Sprintf("Loaded %d older messages", n))
		}
	})
}

func (a *App) refresh() {
	a.async(func(ctx context.Context) {
		if err := a.vm.Refresh(ctx); err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.vm.Flash.Info("Conversations refreshed")
	})
}

func (a *App) markAllRead() {
	a.async(func(ctx context.Context) {
		n, err := a.vm.MarkAllRead(ctx)
		if err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.vm.Flash.Info(fmt.Sprintf("Marked %d conversations read", n))
	})
}

func (a *App) createConversation(providerID string) {
	a.async(func(ctx context.Context) {
		c, err := a.vm.Create(ctx, providerID)
		if err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.open(c.ID)
	})
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "h", "help":
		a.push(pageHelp)
	case "refresh", "r":
		a.refresh()
	case "readall":
		a.markAllRead()
	case "new":
		if cmd.Args == "" {
			a.showPrompt(ui.PromptProvider)
			return
		}
		a.createConversation(cmd.Args)
	case "open", "chat":
		c, ok := a.list.FindByName(cmd.Args)
		if !ok || cmd.Args == "" {
			a.vm.Flash.Warn(fmt.Sprintf("No conversation matches %q", cmd.Args))
			return
		}
		a.open(c.ID)
	case "login":
		fields := strings.Fields(cmd.Args)
		if len(fields) != 2 {
			a.vm.Flash.Warn("usage: :login <viewer-id> <token>")
			return
		}
		a.async(func(ctx context.Context) {
			if err := a.vm.SignIn(ctx, fields[0], fields[1]); err != nil {
				a.vm.Flash.Err(err)
				return
			}
			a.vm.Flash.Info("Signed in as " + fields[0])
		})
	case "logout":
		a.async(func(ctx context.Context) {
			if err := a.vm.SignOut(ctx); err != nil {
				a.vm.Flash.Err(err)
				return
			}
			a.app.QueueUpdateDraw(func() { a.pages.Reset(pageConversations) })
			a.vm.Flash.Info("Signed out")
		})
	default:
		a.vm.Flash.Warn(fmt.Sprintf("Unknown command %q", cmd.Name))
	}
}

// draw copies the view model into the widgets. Must run on the UI goroutine.
func (a *App) draw() {
	a.list.Update(a.vm.Conversations())
	if a.pages.Contains(pageThread) {
		t := a.vm.Thread()
		if t == nil {
			a.pages.Reset(pageConversations)
			a.focusCurrent()
		}
		a.thread.Update(t)
	}

	data := &ui.ProfileData{Profile: a.profile, Unread: a.vm.Unread()}
	if st := a.vm.Status(); st != nil {
		data.Viewer = st.ViewerID
		data.Phase = st.Phase
		data.AutoRefresh = st.AutoRefresh
		data.Uptime = time.Duration(st.UptimeMs) * time.Millisecond
	}
	data.Conversations = len(a.vm.Conversations())
	a.profileInfo.Update(data)
	a.flashBar.Update(a.vm.Flash.Current())
}

// Run loads the initial state and blocks until the user quits.
func (a *App) Run() error {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		if err := a.vm.LoadStatus(ctx); err != nil {
			a.vm.Flash.Err(err)
		}
		if a.vm.SignedIn() {
			if err := a.vm.LoadConversations(ctx, true); err != nil {
				a.vm.Flash.Err(err)
			}
		} else {
			a.vm.Flash.Warn("Not signed in. Use :login <viewer-id> <token>")
		}
		cancel()
		go a.vm.Watch(a.ctx)
	}()
	go a.redrawLoop()

	return a.app.Run()
}

func (a *App) redrawLoop() {
	// The ticker expires flash messages and advances the uptime.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
		case <-a.vm.Flash.Watch():
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
		a.app.QueueUpdateDraw(a.draw)
	}
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
