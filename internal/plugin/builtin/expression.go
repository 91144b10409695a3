package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/roach88/eca/internal/plugin"
	"github.com/roach88/eca/internal/tokens"
)

// maxExpressionSteps bounds a single expression evaluation.
const maxExpressionSteps = 100_000

// expression evaluates a Starlark boolean expression. Top-level tokens are
// predeclared as globals; token("a.b") reads a dotted path and returns None
// when it is absent.
type expression struct {
	src string
}

func newExpression(spec plugin.Spec) (any, error) {
	var cfg struct {
		Expr string `config:"expr"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Expr == "" {
		return nil, fmt.Errorf("expr is required")
	}
	if _, err := syntax.ParseExpr("expression", cfg.Expr, 0); err != nil {
		return nil, fmt.Errorf("parse expr: %w", err)
	}
	return expression{src: cfg.Expr}, nil
}

func (e expression) Evaluate(_ context.Context, tc *tokens.Context) (bool, error) {
	thread := &starlark.Thread{
		Name:  "eca-expression",
		Print: func(*starlark.Thread, string) {},
	}
	thread.SetMaxExecutionSteps(maxExpressionSteps)

	predeclared := starlark.StringDict{
		"token": starlark.NewBuiltin("token", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var path string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
				return nil, err
			}
			v, ok := tc.Get(path)
			if !ok {
				return starlark.None, nil
			}
			return toStarlark(v), nil
		}),
	}
	for k, v := range tc.Snapshot() {
		if _, reserved := predeclared[k]; reserved {
			continue
		}
		predeclared[k] = toStarlark(v)
	}

	result, err := starlark.Eval(thread, "expression", e.src, predeclared)
	if err != nil {
		return false, fmt.Errorf("eval expr: %w", err)
	}
	return bool(result.Truth()), nil
}

// toStarlark converts token values. Values without a Starlark counterpart
// (host handles) become their string form.
func toStarlark(v any) starlark.Value {
	switch val := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(val)
	case int:
		return starlark.MakeInt(val)
	case int64:
		return starlark.MakeInt64(val)
	case float64:
		return starlark.Float(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return starlark.MakeInt64(i)
		}
		return starlark.String(val.String())
	case string:
		return starlark.String(val)
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list)
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = toStarlark(item)
		}
		return starlark.NewList(list)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			_ = dict.SetKey(starlark.String(k), toStarlark(val[k]))
		}
		return dict
	case *tokens.Context:
		return toStarlark(val.Snapshot())
	default:
		return starlark.String(fmt.Sprintf("%v", val))
	}
}
