package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages navigates tview pages as a stack. Only the top page is visible.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange registers fn to receive a copy of the stack after every change.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push puts name on top. A page already on the stack is returned to instead,
// dropping everything above it, so the stack never holds a page twice.
func (p *Pages) Push(name string) {
	if i := slices.Index(p.stack, name); i >= 0 {
		if i == len(p.stack)-1 {
			return
		}
		p.rewind(i + 1)
		return
	}
	p.stack = append(p.stack, name)
	p.showTop()
}

// Pop removes the top page and returns its name, or "" when the stack is empty.
func (p *Pages) Pop() string {
	if len(p.stack) == 0 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.rewind(len(p.stack) - 1)
	return top
}

// Reset leaves name as the only page.
func (p *Pages) Reset(name string) {
	p.stack = append(p.stack[:0], name)
	p.showTop()
}

// Current returns the top page, or "" when the stack is empty.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the page stack, bottom first.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Depth returns the number of pages on the stack.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Contains reports whether name is anywhere on the stack.
func (p *Pages) Contains(name string) bool {
	return slices.Contains(p.stack, name)
}

// rewind truncates the stack to depth entries.
func (p *Pages) rewind(depth int) {
	p.stack = p.stack[:depth]
	p.showTop()
}

func (p *Pages) showTop() {
	if top := p.Current(); top != "" {
		p.SwitchToPage(top)
	}
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
