// Package luafilter evaluates a user-supplied Lua boolean expression
// against each traced instruction's address, giving cmd/tracedump's
// --filter flag a small expression language instead of a bespoke query
// DSL.
//
// Grounded on the teacher's wider embedding of gopher-lua as a
// scripting hook: a single *lua.LState, created once and reused,
// evaluates "return <expr>" with a handful of globals set before each
// call. The expression text is parsed again on every call.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later
package luafilter

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Filter wraps one expression's source text and a reusable Lua state.
type Filter struct {
	state *lua.LState
	expr  string
}

// New stores expr (a bare Lua expression, not a full chunk) and
// returns a Filter ready for repeated Match calls. Only an empty expr is
// rejected here; a syntax error surfaces from the first Match.
func New(expr string) (*Filter, error) {
	if expr == "" {
		return nil, fmt.Errorf("luafilter: empty expression")
	}
	return &Filter{state: lua.NewState(), expr: expr}, nil
}

// Close releases the underlying Lua state.
func (f *Filter) Close() { f.state.Close() }

// Match evaluates the expression with seg, off, and flat set as Lua
// globals, returning whether the expression's result is truthy.
func (f *Filter) Match(seg, off uint16, flat uint32) (bool, error) {
	f.state.SetGlobal("seg", lua.LNumber(seg))
	f.state.SetGlobal("off", lua.LNumber(off))
	f.state.SetGlobal("flat", lua.LNumber(flat))

	if err := f.state.DoString("return " + f.expr); err != nil {
		return false, fmt.Errorf("luafilter: %w", err)
	}
	ret := f.state.Get(-1)
	f.state.Pop(1)
	return lua.LVAsBool(ret), nil
}
