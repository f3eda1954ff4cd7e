package logging

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	mu      sync.Mutex
	current zerolog.Logger
	started atomic.Bool
)

func init() {
	// A usable default exists even if Init is never called, matching the
	// teacher's reach for log.Printf without any setup step.
	current = zerolog.New(NewConsoleSink().writer()).With().Timestamp().Logger()
}

// Init installs sink as the process-wide log destination. Safe to call
// again later to retarget logging (e.g. console during development, file
// in production); the previous sink is not closed by Init.
func Init(sink Sink) {
	mu.Lock()
	defer mu.Unlock()
	current = zerolog.New(sink.writer()).With().Timestamp().Logger()
	started.Store(true)
}

// Stop clears the started flag that Init sets. It does not block later
// Init calls and does not close any sink; callers that opened a FileSink
// are responsible for closing it themselves once Stop returns.
func Stop() {
	started.Store(false)
}

func get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// Log writes one formatted line at the given level, mirroring the
// log(level, fmt, args...) contract external collaborators are expected to
// use (spec §6). component identifies the emitting subsystem, e.g. "loop",
// "timerqueue", "tcpconnection".
func Log(level Level, component string, fmt string, args ...any) {
	l := get()
	ev := l.WithLevel(level.zerolog())
	ev.Str("component", component).Msgf(fmt, args...)
}

func Debugf(component, fmt string, args ...any) { Log(Debug, component, fmt, args...) }
func Infof(component, fmt string, args ...any)  { Log(Info, component, fmt, args...) }
func Warnf(component, fmt string, args ...any)  { Log(Warn, component, fmt, args...) }
func Errorf(component, fmt string, args ...any) { Log(Error, component, fmt, args...) }
