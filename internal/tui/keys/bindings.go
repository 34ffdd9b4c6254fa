package keys

import "github.com/gdamore/tcell/v2"

// Action is one key binding.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Handler func()
	// When gates the binding; nil means always enabled.
	When func() bool
}

// Matches reports whether ev triggers the action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

func (a *Action) enabled() bool {
	return a.When == nil || a.When()
}

type binding struct {
	name   string
	action *Action
}

// Registry holds bindings in registration order, global and per page.
type Registry struct {
	global []binding
	views  map[string][]binding
}

func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]binding)}
}

// AddGlobal registers a binding active on every page. Re-adding a name replaces it.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global = upsert(r.global, name, action)
}

// AddView registers a binding for one page. Page bindings win over global ones.
func (r *Registry) AddView(view, name string, action *Action) {
	r.views[view] = upsert(r.views[view], name, action)
}

func upsert(list []binding, name string, action *Action) []binding {
	for i := range list {
		if list[i].name == name {
			list[i].action = action
			return list
		}
	}
	return append(list, binding{name: name, action: action})
}

// Lookup returns the enabled action ev triggers on view, or nil.
func (r *Registry) Lookup(view string, ev *tcell.EventKey) *Action {
	for _, list := range [][]binding{r.views[view], r.global} {
		for _, b := range list {
			if b.action.Matches(ev) && b.action.enabled() {
				return b.action
			}
		}
	}
	return nil
}

// HandleEvent runs the action ev triggers on view. It reports whether one ran.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	a := r.Lookup(view, ev)
	if a == nil || a.Handler == nil {
		return false
	}
	a.Handler()
	return true
}
