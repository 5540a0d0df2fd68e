package composer

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ScriptTimeout bounds one call into a Lua translator.
const ScriptTimeout = 50 * time.Millisecond

type luaTranslator struct {
	name string
	fn   *lua.LFunction
}

// scriptRuntime runs the Lua translators of one dictionary snapshot. It
// belongs to a single Composer and is not safe for concurrent use.
type scriptRuntime struct {
	L           *lua.LState
	translators []luaTranslator
}

// newScriptRuntime loads every script into a fresh state with only the
// base, table, string and math libraries. Each script must define a
// global translate(input) function.
func newScriptRuntime(scripts []Script) (*scriptRuntime, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open lua %s library: %w", lib.name, err)
		}
	}
	// Scripts get no way to load further code from disk.
	for _, name := range []string{"dofile", "loadfile", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	rt := &scriptRuntime{L: L}
	for _, s := range scripts {
		if err := L.DoString(s.Source); err != nil {
			L.Close()
			return nil, fmt.Errorf("load translator %q: %w", s.Name, err)
		}
		fn, ok := L.GetGlobal("translate").(*lua.LFunction)
		if !ok {
			L.Close()
			return nil, fmt.Errorf("translator %q does not define translate(input)", s.Name)
		}
		L.SetGlobal("translate", lua.LNil)
		rt.translators = append(rt.translators, luaTranslator{name: s.Name, fn: fn})
	}
	return rt, nil
}

// translate calls every translator with input and collects predicates.
// A failing translator is reported and skipped.
func (rt *scriptRuntime) translate(input string, report func(name string, err error)) []Predicate {
	var out []Predicate
	for _, tr := range rt.translators {
		preds, err := rt.call(tr, input)
		if err != nil {
			report(tr.name, err)
			continue
		}
		out = append(out, preds...)
	}
	return out
}

func (rt *scriptRuntime) call(tr luaTranslator, input string) ([]Predicate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ScriptTimeout)
	defer cancel()
	rt.L.SetContext(ctx)
	defer rt.L.RemoveContext()

	if err := rt.L.CallByParam(lua.P{Fn: tr.fn, NRet: 1, Protect: true}, lua.LString(input)); err != nil {
		return nil, err
	}
	ret := rt.L.Get(-1)
	rt.L.Pop(1)

	switch ret := ret.(type) {
	case *lua.LNilType:
		return nil, nil
	case *lua.LTable:
		return predicatesFromTable(input, ret)
	default:
		return nil, fmt.Errorf("translate returned %s, want table", ret.Type())
	}
}

func predicatesFromTable(input string, tbl *lua.LTable) ([]Predicate, error) {
	var out []Predicate
	var err error
	tbl.ForEach(func(_, v lua.LValue) {
		if err != nil {
			return
		}
		item, ok := v.(*lua.LTable)
		if !ok {
			err = fmt.Errorf("predicate is %s, want table", v.Type())
			return
		}
		p := Predicate{
			Code:      lua.LVAsString(item.RawGetString("code")),
			Remaining: lua.LVAsString(item.RawGetString("remaining")),
			CanCommit: lua.LVAsBool(item.RawGetString("can_commit")),
		}
		if p.Code == "" {
			p.Code = input
		}
		switch texts := item.RawGetString("texts").(type) {
		case lua.LString:
			p.Texts = []string{string(texts)}
		case *lua.LTable:
			texts.ForEach(func(_, t lua.LValue) {
				if s, ok := t.(lua.LString); ok {
					p.Texts = append(p.Texts, string(s))
				}
			})
		}
		out = append(out, p)
	})
	return out, err
}

func (rt *scriptRuntime) close() {
	if rt != nil && rt.L != nil {
		rt.L.Close()
		rt.L = nil
	}
}
