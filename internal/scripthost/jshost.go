package scripthost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/moviebox/engine/internal/fetcher"
)

// JSHost is the JS Script Host variant, backed by a pure-Go ECMAScript VM.
// Grounded on render/chrome/instance.go's acquire/IsAlive/restart-on-death
// lifecycle, applied to a VM instead of a browser tab: a JSHost whose script
// has panicked is marked dead and the owning Spider Manager entry is rebuilt
// on the next Get rather than reused. A call that runs past its deadline is
// interrupted and returns ErrScriptTimeout; the host stays alive.
type JSHost struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	bridge  *defaultBridge
	alive   atomic.Bool
	logger  *zap.Logger
}

func NewJSHost(f *fetcher.Fetcher, siteKey, proxyPrefix string, logger *zap.Logger) *JSHost {
	h := &JSHost{logger: logger}
	h.bridge = newBridge(f, siteKey, proxyPrefix, logger)
	h.alive.Store(true)
	return h
}

func (h *JSHost) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	vm := goja.New()
	if err := installBridge(vm, h.bridge); err != nil {
		return fmt.Errorf("jshost init: %w", err)
	}
	h.vm = vm
	return nil
}

// installBridge registers the native bridge surface as global functions,
// per §4.3's fixed bridge set.
func installBridge(vm *goja.Runtime, b *defaultBridge) error {
	set := func(name string, fn func(goja.FunctionCall) goja.Value) error {
		return vm.Set(name, fn)
	}

	if err := set("req", func(call goja.FunctionCall) goja.Value {
		url := call.Argument(0).String()
		var opts map[string]any
		if len(call.Arguments) > 1 {
			if m, ok := call.Argument(1).Export().(map[string]any); ok {
				opts = m
			}
		}
		result, err := b.Req(url, opts)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return vm.ToValue(result)
	}); err != nil {
		return err
	}

	if err := set("pdfh", func(call goja.FunctionCall) goja.Value {
		html := call.Argument(0).String()
		selector := call.Argument(1).String()
		out, err := b.Pdfh(html, selector)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return vm.ToValue(out)
	}); err != nil {
		return err
	}

	if err := set("pdfa", func(call goja.FunctionCall) goja.Value {
		html := call.Argument(0).String()
		selector := call.Argument(1).String()
		out, err := b.Pdfa(html, selector)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return vm.ToValue(out)
	}); err != nil {
		return err
	}

	if err := set("urljoin", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(b.URLJoin(call.Argument(0).String(), call.Argument(1).String()))
	}); err != nil {
		return err
	}

	if err := set("base64Encode", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(b.Base64Encode(call.Argument(0).String()))
	}); err != nil {
		return err
	}

	if err := set("base64Decode", func(call goja.FunctionCall) goja.Value {
		out, err := b.Base64Decode(call.Argument(0).String())
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return vm.ToValue(out)
	}); err != nil {
		return err
	}

	if err := set("sleep", func(call goja.FunctionCall) goja.Value {
		b.Sleep(int(call.Argument(0).ToInteger()))
		return goja.Undefined()
	}); err != nil {
		return err
	}

	if err := set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		b.Log(args...)
		return goja.Undefined()
	}); err != nil {
		return err
	}

	if err := set("regexMatchAll", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(b.RegexMatchAll(call.Argument(0).String(), call.Argument(1).String()))
	}); err != nil {
		return err
	}

	if err := set("proxyUrl", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(b.ProxyURL(call.Argument(0).String()))
	}); err != nil {
		return err
	}

	return nil
}

func (h *JSHost) Eval(ctx context.Context, source string) error {
	return withCallDeadline(ctx, func(callCtx context.Context) error {
		return h.evalLocked(source, callCtx)
	})
}

func (h *JSHost) evalLocked(source string, ctx context.Context) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			h.alive.Store(false)
			err = fmt.Errorf("jshost: script panicked: %v", r)
		}
	}()

	vm, stop, watched := h.vm, make(chan struct{}), make(chan struct{})
	defer func() { close(stop); <-watched; vm.ClearInterrupt() }()
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	_, evalErr := h.vm.RunString(source)
	return evalErr
}

func (h *JSHost) HasFn(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.vm == nil {
		return false
	}
	_, ok := goja.AssertFunction(h.vm.Get(name))
	return ok
}

func (h *JSHost) Call(ctx context.Context, name string, args any) (result any, err error) {
	callErr := withCallDeadline(ctx, func(callCtx context.Context) error {
		var innerErr error
		result, innerErr = h.callLocked(name, args, callCtx)
		return innerErr
	})
	if callErr != nil {
		return nil, callErr
	}
	return result, nil
}

func (h *JSHost) callLocked(name string, args any, ctx context.Context) (out any, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			h.alive.Store(false)
			err = fmt.Errorf("jshost: call %q panicked: %v", name, r)
		}
	}()

	fn, ok := goja.AssertFunction(h.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}

	vm, stop, watched := h.vm, make(chan struct{}), make(chan struct{})
	defer func() { close(stop); <-watched; vm.ClearInterrupt() }()
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	// Marshal through JSON so args/result use plain Go types (map/slice/
	// primitive) rather than leaking goja.Value, matching the JSON-shaped
	// contract of the Host interface.
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("jshost: marshal args: %w", err)
	}
	var jsArgs any
	if err := json.Unmarshal(raw, &jsArgs); err != nil {
		return nil, fmt.Errorf("jshost: unmarshal args: %w", err)
	}

	value, callErr := fn(goja.Undefined(), h.vm.ToValue(jsArgs))
	if callErr != nil {
		return nil, fmt.Errorf("jshost: call %q: %w", name, callErr)
	}
	return value.Export(), nil
}

func (h *JSHost) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vm = nil
	h.alive.Store(false)
}

func (h *JSHost) IsAlive() bool {
	return h.alive.Load()
}
