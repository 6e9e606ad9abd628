package toast

// EventName is the event name dispatched for toasts.
const EventName = "jobtrail:toast"

// Type represents the toast notification type.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Emitter dispatches a named event with a JSON-encodable payload to the
// browser. A page session implements it.
type Emitter interface {
	Emit(name string, data any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(name string, data any)

// Emit calls f.
func (f EmitterFunc) Emit(name string, data any) { f(name, data) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(string, any) {})

// Show displays a toast notification.
//
// The client receives:
//   - event.type = "jobtrail:toast"
//   - event.detail = { level: "success|error|warning|info", message: "..." }
func Show(e Emitter, level Type, message string) {
	e.Emit(EventName, map[string]any{
		"level":   string(level),
		"message": message,
	})
}

// Success shows a success toast.
//
//	toast.Success(sess, "Listing saved")
func Success(e Emitter, message string) {
	Show(e, TypeSuccess, message)
}

// Error shows an error toast.
//
//	toast.Error(sess, "Failed to save listing")
func Error(e Emitter, message string) {
	Show(e, TypeError, message)
}

// Warning shows a warning toast.
func Warning(e Emitter, message string) {
	Show(e, TypeWarning, message)
}

// Info shows an info toast.
func Info(e Emitter, message string) {
	Show(e, TypeInfo, message)
}

// WithTitle shows a toast with a title and message.
//
//	toast.WithTitle(sess, toast.TypeError, "Save failed", "Acme / Backend Engineer was returned to drafts.")
func WithTitle(e Emitter, level Type, title, message string) {
	e.Emit(EventName, map[string]any{
		"level":   string(level),
		"title":   title,
		"message": message,
	})
}

// WithAction shows a toast with an action button. actionID is echoed back
// by the page when the button is pressed.
//
//	toast.WithAction(sess, toast.TypeError, "Save failed", "Retry", "save:"+id)
func WithAction(e Emitter, level Type, message, actionLabel, actionID string) {
	e.Emit(EventName, map[string]any{
		"level":       string(level),
		"message":     message,
		"actionLabel": actionLabel,
		"actionID":    actionID,
	})
}
