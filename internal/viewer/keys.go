package viewer

// Viewer actions, as used in routes and key bindings.
const (
	ActionNext    = "next"
	ActionPrev    = "prev"
	ActionFirst   = "first"
	ActionLast    = "last"
	ActionZoomIn  = "zoom-in"
	ActionZoomOut = "zoom-out"
)

// Shortcut maps a key press to a viewer action. It returns "" for keys
// without a binding. mod is Ctrl on most platforms and Cmd on macOS.
func Shortcut(key string, mod bool) string {
	switch key {
	case "ArrowLeft":
		if !mod {
			return ActionPrev
		}
	case "ArrowRight":
		if !mod {
			return ActionNext
		}
	case "Home":
		if !mod {
			return ActionFirst
		}
	case "End":
		if !mod {
			return ActionLast
		}
	case "+", "=":
		if mod {
			return ActionZoomIn
		}
	case "-":
		if mod {
			return ActionZoomOut
		}
	}
	return ""
}

// Apply runs action on v. It reports false for an unknown action.
func (v *Viewer) Apply(action string) bool {
	switch action {
	case ActionNext:
		v.Next()
	case ActionPrev:
		v.Prev()
	case ActionFirst:
		v.First()
	case ActionLast:
		v.Last()
	case ActionZoomIn:
		v.ZoomIn()
	case ActionZoomOut:
		v.ZoomOut()
	default:
		return false
	}
	return true
}
