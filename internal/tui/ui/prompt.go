package ui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode is what a submitted prompt line is used for.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
	// PromptProvider asks for the provider of a new conversation.
	PromptProvider
)

type promptSpec struct {
	label string
	title string
	// live modes report every edit, not only the submitted line.
	live bool
	// history modes can recall previous lines with Up and Down.
	history bool
}

var promptSpecs = map[PromptMode]promptSpec{
	PromptCommand:  {label: ":", title: " Command ", history: true},
	PromptFilter:   {label: "/", title: " Filter ", live: true},
	PromptProvider: {label: "provider id: ", title: " New Conversation "},
}

const maxPromptHistory = 50

// Prompt is the input bar for commands, filters and short answers.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	onSubmit func(mode PromptMode, text string)
	onChange func(mode PromptMode, text string)
	onCancel func()

	history []string
	// cursor indexes history while recalling; len(history) means the fresh line.
	cursor int
}

// NewPrompt creates a new prompt bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{InputField: input}
	input.SetDoneFunc(p.done)
	input.SetChangedFunc(func(text string) {
		if promptSpecs[p.mode].live && p.onChange != nil {
			p.onChange(p.mode, text)
		}
	})
	input.SetInputCapture(p.recall)
	return p
}

// SetOnSubmit sets the callback for a submitted, non-empty line.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnChange sets the callback for edits in live modes such as the filter.
func (p *Prompt) SetOnChange(fn func(mode PromptMode, text string)) {
	p.onChange = fn
}

// SetOnCancel sets the callback for Escape.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate clears the prompt and switches it to mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.cursor = len(p.history)
	spec := promptSpecs[mode]
	p.SetLabel(spec.label)
	p.SetTitle(spec.title)
	p.SetText("")
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}

func (p *Prompt) done(key tcell.Key) {
	switch key {
	case tcell.KeyEnter:
		text := strings.TrimSpace(p.GetText())
		if text != "" {
			p.remember(text)
			if p.onSubmit != nil {
				p.onSubmit(p.mode, text)
			}
		}
		p.SetText("")
	case tcell.KeyEscape:
		p.SetText("")
		if p.onCancel != nil {
			p.onCancel()
		}
	}
}

// remember records command lines. Lines carrying credentials are not kept.
func (p *Prompt) remember(text string) {
	if !promptSpecs[p.mode].history || strings.HasPrefix(text, "login") {
		return
	}
	if n := len(p.history); n > 0 && p.history[n-1] == text {
		return
	}
	p.history = append(p.history, text)
	if len(p.history) > maxPromptHistory {
		p.history = p.history[len(p.history)-maxPromptHistory:]
	}
}

func (p *Prompt) recall(ev *tcell.EventKey) *tcell.EventKey {
	if !promptSpecs[p.mode].history {
		return ev
	}
	switch ev.Key() {
	case tcell.KeyUp:
		if p.cursor > 0 {
			p.cursor--
			p.SetText(p.history[p.cursor])
		}
		return nil
	case tcell.KeyDown:
		if p.cursor < len(p.history) {
			p.cursor++
		}
		if p.cursor == len(p.history) {
			p.SetText("")
		} else {
			p.SetText(p.history[p.cursor])
		}
		return nil
	}
	return ev
}
