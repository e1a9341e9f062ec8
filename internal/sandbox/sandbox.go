// Package sandbox executes generated extraction code under a narrow,
// capability-scoped contract. A fragment is one JavaScript function body: it
// receives a single input binding, may use only pure language built-ins plus
// the helpers the capability set grants, and must return an array of objects.
//
// Every failure mode (exception, timeout, disallowed capability, wrong
// return shape) comes back as an *ExecError, never a panic, because the
// error string is itself input to the generation agent's repair loop.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/shopspring/decimal"
)

// DefaultTimeout bounds one fragment execution.
const DefaultTimeout = 10 * time.Second

// ExecError is a sandbox failure. Message is what the repair loop feeds back
// to the model on the next turn.
type ExecError struct {
	Message string
}

func (e *ExecError) Error() string {
	return e.Message
}

func execErrorf(format string, args ...any) *ExecError {
	return &ExecError{Message: fmt.Sprintf(format, args...)}
}

// Capabilities is the explicit allow-list a fragment runs under. The zero
// value grants nothing beyond the ECMAScript built-ins (String, Number, Date,
// RegExp, Math, Array, Object, JSON); there is no host access of any kind in
// the runtime, so network, filesystem, process and timer use fail as
// reference errors.
type Capabilities struct {
	// ParseHelpers grants parseNumber and parseDate, the same cleaners the
	// deterministic extractor uses. Generated code that reuses them tends to
	// agree with the validator.
	ParseHelpers bool

	// LogSink, when set, receives the arguments of log(...) calls joined by
	// spaces. Without it, log is a no-op that still exists so generated
	// debug lines don't crash the fragment.
	LogSink func(string)

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// Executor runs fragments. Each call builds a fresh runtime, so no global
// declared by one fragment ever outlives its call.
type Executor struct {
	caps Capabilities
}

func NewExecutor(caps Capabilities) *Executor {
	return &Executor{caps: caps}
}

// Run executes a fragment with the named input binding and returns the array
// of objects it produced. code is a bare function body; Run supplies the
// enclosing declaration.
func (e *Executor) Run(ctx context.Context, code, binding string, input any) ([]map[string]any, error) {
	if strings.TrimSpace(code) == "" {
		return nil, execErrorf("empty code fragment")
	}
	if binding == "" {
		binding = "text"
	}

	vm := goja.New()
	e.installCapabilities(vm)

	if err := vm.Set("__input__", input); err != nil {
		return nil, execErrorf("binding input: %v", err)
	}

	timeout := e.caps.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() { vm.Interrupt("execution timed out") })
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("execution canceled")
		case <-done:
		}
	}()
	defer func() {
		timer.Stop()
		close(done)
	}()

	wrapped := fmt.Sprintf("(function(%s) {\n'use strict';\n%s\n})(__input__);", binding, code)

	value, err := vm.RunString(wrapped)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, execErrorf("%v", interrupted.Value())
		}
		return nil, execErrorf("%s", err.Error())
	}

	return normalizeResult(value)
}

func (e *Executor) installCapabilities(vm *goja.Runtime) {
	logSink := e.caps.LogSink
	_ = vm.Set("log", func(call goja.FunctionCall) goja.Value {
		if logSink != nil {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			logSink(strings.Join(parts, " "))
		}
		return goja.Undefined()
	})

	if e.caps.ParseHelpers {
		_ = vm.Set("parseNumber", func(raw string) goja.Value {
			d, negative, ok := cleanNumber(raw)
			if !ok {
				return goja.Null()
			}
			f := d.InexactFloat64()
			if negative {
				f = -f
			}
			return vm.ToValue(f)
		})
		_ = vm.Set("parseDate", func(raw string) goja.Value {
			iso, ok := parseAnyDate(raw)
			if !ok {
				return goja.Null()
			}
			return vm.ToValue(iso)
		})
	}
}

// normalizeResult enforces the explicit-array-return contract.
func normalizeResult(value goja.Value) ([]map[string]any, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, execErrorf("fragment returned no value; it must return an array of objects")
	}

	exported := value.Export()
	items, ok := exported.([]any)
	if !ok {
		return nil, execErrorf("fragment returned %T; it must return an array of objects", exported)
	}

	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, execErrorf("element %d is %T; every element must be an object", i, item)
		}
		out = append(out, obj)
	}
	return out, nil
}

var numberReplacer = strings.NewReplacer("₹", "", "$", "", "€", "", "£", "", ",", "", " ", "")

func cleanNumber(raw string) (decimal.Decimal, bool, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false, false
	}
	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "CR") || strings.HasSuffix(upper, "DR") {
		s = strings.TrimSpace(s[:len(s)-2])
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = numberReplacer.Replace(s)
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, false
	}
	return d.Abs(), negative, true
}

var dateLayouts = []string{
	"2006-01-02", "02/01/2006", "02-01-2006", "02-Jan-2006", "02 Jan 2006",
	"Jan 02, 2006", "2006/01/02", "02.01.2006", "02/01/06", "02-Jan-06",
}

func parseAnyDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
