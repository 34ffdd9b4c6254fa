package ui

// MenuHint is a key shortcut shown in the header menu.
type MenuHint struct {
	Key         string
	Description string
	// Numeric hints are drawn in their own color.
	Numeric bool
}

// Component is a page of the TUI.
type Component interface {
	Name() string
	Hints() []MenuHint
}
