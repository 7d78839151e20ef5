package sync

import "log/slog"

// NoticeLevel grades user-facing notices.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

// Notifier receives human-readable notices paired with status
// transitions. The core stays silent and return-value driven; callers
// that face a user plug in something louder.
type Notifier interface {
	Notify(level NoticeLevel, msg string)
}

// slogNotifier is the default Notifier, writing notices to the log.
type slogNotifier struct{}

func (slogNotifier) Notify(level NoticeLevel, msg string) {
	switch level {
	case NoticeError:
		slog.Error(msg)
	case NoticeWarn:
		slog.Warn(msg)
	default:
		slog.Info(msg)
	}
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(level NoticeLevel, msg string)

func (f NotifierFunc) Notify(level NoticeLevel, msg string) {
	f(level, msg)
}
