package syncer

import (
	"context"
	"log/slog"
	"time"
)

// NoticeLevel classifies a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// User-facing notice texts.
const (
	MsgPeoplePathNotFolder = `Error: "People path" option must be a folder.`
	MsgInvalidCredentials  = "Error: Make sure you have entered valid iCloud credentials"
	MsgCreatedFolder       = `Created iCloud contacts folder "%s"`
	MsgStarting            = "Starting iCloud contacts sync"
	MsgFetchFailed         = "Error: Sync failed, check your iCloud credentials"
	MsgCompleted           = "Completed iCloud contacts sync"
)

// Notice is a short message meant for the person running the sync.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Time    time.Time   `json:"time"`
}

// Notifier receives notices as a pass progresses. Implementations must not
// block for long: notices are delivered on the sync goroutine.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// Notifiers fans a notice out to every member.
type Notifiers []Notifier

// Notify forwards n to each non-nil notifier in order.
func (ns Notifiers) Notify(n Notice) {
	for _, x := range ns {
		if x != nil {
			x.Notify(n)
		}
	}
}

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at info or error level.
func (l LogNotifier) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if n.Level == NoticeError {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, "notice", slog.String("message", n.Message))
}
