package scripthost

import "context"

// PyHost is the Python Script Host variant. No pure-Go CPython embedding
// exists in this build's dependency set, so PyHost implements the full
// Host contract but every operation fails with ErrHostUnavailable. Spider
// Manager does not construct a PyHost: every script site, Python-backed
// ones included, gets a JSHost, and a script that fails to evaluate there
// degrades the site to a NullSpider (§4.5, §7).
type PyHost struct{}

func NewPyHost() *PyHost { return &PyHost{} }

func (h *PyHost) Init(ctx context.Context) error { return ErrHostUnavailable }

func (h *PyHost) Eval(ctx context.Context, source string) error { return ErrHostUnavailable }

func (h *PyHost) HasFn(name string) bool { return false }

func (h *PyHost) Call(ctx context.Context, name string, args any) (any, error) {
	return nil, ErrHostUnavailable
}

func (h *PyHost) Destroy() {}

func (h *PyHost) IsAlive() bool { return false }
