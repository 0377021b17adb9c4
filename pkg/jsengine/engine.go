// Package jsengine evaluates ${...} expressions in recorded step values
// against run inputs.
package jsengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
)

// Engine wraps a goja runtime holding the run's input variables.
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]interface{}
	mu        sync.Mutex
}

// New creates an engine with the built-in helpers registered.
func New() *Engine {
	e := &Engine{
		runtime:   goja.New(),
		variables: make(map[string]interface{}),
	}
	e.setupBuiltins()
	return e
}

func (e *Engine) setupBuiltins() {
	e.runtime.Set("uuid", func() string { return uuid.NewString() })
	e.runtime.Set("timestamp", func() int64 { return time.Now().UnixMilli() })
	e.runtime.Set("json", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}
		v, err := e.runtime.RunString(fmt.Sprintf("JSON.parse(%q)", call.Arguments[0].String()))
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}
		return v
	})
}

// SetVariable sets a variable accessible in JS as a global.
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables.
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// Variables returns a copy of the variables set so far.
func (e *Engine) Variables() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]interface{}, len(e.variables))
	for k, v := range e.variables {
		out[k] = v
	}
	return out
}

// Eval evaluates a JavaScript expression and returns the exported result.
func (e *Engine) Eval(script string) (interface{}, error) {
	return e.EvalContext(context.Background(), script)
}

// EvalContext is Eval that interrupts the runtime when ctx is done.
func (e *Engine) EvalContext(ctx context.Context, script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() { e.runtime.Interrupt(ctx.Err()) })
		defer func() {
			stop()
			e.runtime.ClearInterrupt()
		}()
	}

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}
	return result.Export(), nil
}

// EvalString evaluates an expression and formats the result.
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", result), nil
}

// DefineUndefinedIfMissing defines name as undefined unless already set,
// so optional inputs do not raise ReferenceError.
func (e *Engine) DefineUndefinedIfMissing(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	val := e.runtime.Get(name)
	if val == nil || goja.IsUndefined(val) {
		if _, exists := e.variables[name]; !exists {
			e.runtime.Set(name, goja.Undefined())
		}
	}
}

// ExpandVariables replaces every ${expr} in text with its value. Expressions
// that fail to evaluate stay as written and are returned in unresolved.
func (e *Engine) ExpandVariables(text string) (expanded string, unresolved []string) {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			switch result[end] {
			case '{':
				depth++
			case '}':
				depth--
			}
			end++
		}
		if depth != 0 {
			start = idx + 2
			continue
		}

		expr := result[idx+2 : end-1]
		value, err := e.EvalString(expr)
		if err != nil {
			unresolved = append(unresolved, expr)
			start = end
			continue
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}
	return result, unresolved
}
