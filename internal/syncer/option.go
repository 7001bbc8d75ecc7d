package syncer

import "log/slog"

// Option configures a Syncer.
type Option func(*Syncer)

// WithRecorder stores every finished pass in r.
func WithRecorder(r Recorder) Option {
	return func(s *Syncer) {
		s.recorder = r
	}
}

// WithNotifier sets where notices go. The default logs them.
func WithNotifier(n Notifier) Option {
	return func(s *Syncer) {
		s.notifier = n
	}
}

// WithLogger sets the logger used for pass and contact diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = l
	}
}

// WithObserver registers fn to receive every finished report, successful
// or not, after it has been recorded.
func WithObserver(fn func(*Report)) Option {
	return func(s *Syncer) {
		s.observer = fn
	}
}
