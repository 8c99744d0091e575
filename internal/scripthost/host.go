// Package scripthost is the Script Host abstraction (C3): a per-Spider
// sandboxed JS/Python VM with a fixed native bridge surface, grounded on
// the pooled-instance liveness/restart shape of render/chrome/instance.go
// (acquire → IsAlive check → restart-if-dead → destroy), applied here to
// an in-process VM rather than an external browser process.
package scripthost

import (
	"context"
	"errors"
	"time"
)

// ErrHostUnavailable is returned by a Host whose backing VM cannot be
// constructed in this build (the Python variant, see pyhost.go).
var ErrHostUnavailable = errors.New("scripthost: backing VM unavailable")

// ErrScriptTimeout is returned when a call exceeds its hard deadline.
var ErrScriptTimeout = errors.New("scripthost: call exceeded deadline")

// ErrFunctionNotFound is returned by Call when the script defines no
// function with the given name.
var ErrFunctionNotFound = errors.New("scripthost: function not defined")

// callDeadline is the hard per-call timeout from §4.3.
const callDeadline = 15 * time.Second

// Host is the contract every Script Host variant implements.
type Host interface {
	// Init prepares the VM, injecting the native bridge surface.
	Init(ctx context.Context) error
	// Eval loads and executes top-level script source (function/class
	// declarations, module-level setup).
	Eval(ctx context.Context, source string) error
	// HasFn reports whether the script defines a callable of the given name.
	HasFn(name string) bool
	// Call invokes a script-defined function with JSON-shaped args and
	// returns its JSON-shaped result.
	Call(ctx context.Context, name string, args any) (any, error)
	// Destroy releases the VM and any resources the bridge surface holds.
	Destroy()
	// IsAlive reports whether the host can still accept calls (false after
	// a panic has left the VM unusable, or after Destroy).
	IsAlive() bool
}

// Bridge is the native function surface injected into every script before
// user code runs, per §4.3.
type Bridge interface {
	Req(url string, opts map[string]any) (map[string]any, error)
	Pdfh(html, selector string) (string, error)
	Pdfa(html, selector string) ([]string, error)
	URLJoin(base, ref string) string
	Base64Encode(s string) string
	Base64Decode(s string) (string, error)
	Sleep(ms int)
	Log(args ...any)
	RegexMatchAll(pattern, text string) [][]string
	ProxyURL(target string) string
}

// withCallDeadline runs fn with a context bounded by callDeadline (or the
// parent's deadline, whichever is sooner), translating a deadline-exceeded
// error into ErrScriptTimeout.
func withCallDeadline(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, callDeadline)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		<-done // wait for fn to observe cancellation and return
		return ErrScriptTimeout
	}
}
