package builtin

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin"
	"github.com/roach88/eca/internal/tokens"
)

type tokenExists struct {
	path string
}

func newTokenExists(spec plugin.Spec) (any, error) {
	var cfg struct {
		Path string `config:"path"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return tokenExists{path: cfg.Path}, nil
}

func (c tokenExists) Evaluate(_ context.Context, tc *tokens.Context) (bool, error) {
	v, ok := tc.Get(c.path)
	return ok && v != nil, nil
}

type tokenEquals struct {
	path  string
	value any
	fold  bool
}

func newTokenEquals(spec plugin.Spec) (any, error) {
	var cfg struct {
		Path            string `config:"path"`
		CaseInsensitive bool   `config:"case_insensitive"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return tokenEquals{
		path:  cfg.Path,
		value: ir.ToGo(spec.Config["value"]),
		fold:  cfg.CaseInsensitive,
	}, nil
}

func (c tokenEquals) Evaluate(_ context.Context, tc *tokens.Context) (bool, error) {
	got, ok := tc.Get(c.path)
	if !ok {
		return false, nil
	}
	want := c.value
	if s, isStr := want.(string); isStr {
		want = plugin.Replace(tc, s)
	}
	return equalValues(got, want, c.fold), nil
}

type tokenCompare struct {
	path     string
	operator string
	value    any
}

// compareOperators map an operator to a test on the three-way comparison.
var compareOperators = map[string]func(c int) bool{
	"<":  func(c int) bool { return c < 0 },
	"<=": func(c int) bool { return c <= 0 },
	">":  func(c int) bool { return c > 0 },
	">=": func(c int) bool { return c >= 0 },
	"==": func(c int) bool { return c == 0 },
	"!=": func(c int) bool { return c != 0 },
}

func newTokenCompare(spec plugin.Spec) (any, error) {
	var cfg struct {
		Path     string `config:"path"`
		Operator string `config:"operator"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if _, ok := compareOperators[cfg.Operator]; !ok {
		return nil, fmt.Errorf("unknown operator %q", cfg.Operator)
	}
	value := ir.ToGo(spec.Config["value"])
	if _, isStr := value.(string); !isStr {
		if _, ok := asFloat(value); !ok {
			return nil, fmt.Errorf("value must be a number or a token reference")
		}
	}
	return tokenCompare{path: cfg.Path, operator: cfg.Operator, value: value}, nil
}

func (c tokenCompare) Evaluate(_ context.Context, tc *tokens.Context) (bool, error) {
	raw, ok := tc.Get(c.path)
	if !ok {
		return false, nil
	}
	want := c.value
	if s, isStr := want.(string); isStr {
		want = plugin.Replace(tc, s)
	}
	order, ok := compareNumbers(raw, want)
	if !ok {
		return false, nil
	}
	return compareOperators[c.operator](order), nil
}

type tokenInList struct {
	path string
	list []any
	fold bool
}

func newTokenInList(spec plugin.Spec) (any, error) {
	var cfg struct {
		Path            string `config:"path"`
		CaseInsensitive bool   `config:"case_insensitive"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	var list []any
	switch v := ir.ToGo(spec.Config["list"]).(type) {
	case []any:
		list = v
	case string:
		for _, item := range strings.Split(v, ",") {
			list = append(list, strings.TrimSpace(item))
		}
	case nil:
	default:
		return nil, fmt.Errorf("list must be a list or a comma-separated string")
	}
	return tokenInList{path: cfg.Path, list: list, fold: cfg.CaseInsensitive}, nil
}

func (c tokenInList) Evaluate(_ context.Context, tc *tokens.Context) (bool, error) {
	got, ok := tc.Get(c.path)
	if !ok {
		return false, nil
	}
	for _, item := range c.list {
		if equalValues(got, item, c.fold) {
			return true, nil
		}
	}
	return false, nil
}

// combinator evaluates nested conditions with AND (all) or OR (any)
// semantics, short-circuiting. An empty "all" is true, an empty "any" false.
type combinator struct {
	matchAny bool
	items    []combinedItem
}

type combinedItem struct {
	cond   plugin.ConditionPlugin
	negate bool
}

func newCombinator(matchAny bool) plugin.Factory {
	return func(spec plugin.Spec) (any, error) {
		var cfg struct {
			Conditions []struct {
				Plugin string         `config:"plugin"`
				Config map[string]any `config:"config"`
				Negate bool           `config:"negate"`
			} `config:"conditions"`
		}
		if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
			return nil, err
		}
		if spec.Catalog == nil {
			return nil, fmt.Errorf("no catalog to resolve nested conditions")
		}
		c := combinator{matchAny: matchAny}
		for i, item := range cfg.Conditions {
			nested, err := ir.MapFromGo(item.Config)
			if err != nil {
				return nil, fmt.Errorf("conditions[%d]: %w", i, err)
			}
			cond, err := spec.Catalog.Condition(item.Plugin, nested)
			if err != nil {
				return nil, fmt.Errorf("conditions[%d]: %w", i, err)
			}
			c.items = append(c.items, combinedItem{cond: cond, negate: item.Negate})
		}
		return c, nil
	}
}

func (c combinator) Evaluate(ctx context.Context, tc *tokens.Context) (bool, error) {
	for i, item := range c.items {
		ok, err := item.cond.Evaluate(ctx, tc)
		if err != nil {
			return false, fmt.Errorf("conditions[%d]: %w", i, err)
		}
		if item.negate {
			ok = !ok
		}
		if c.matchAny && ok {
			return true, nil
		}
		if !c.matchAny && !ok {
			return false, nil
		}
	}
	return !c.matchAny, nil
}

func equalValues(a, b any, fold bool) bool {
	if order, ok := compareNumbers(a, b); ok {
		return order == 0
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	if fold {
		return strings.EqualFold(as, bs)
	}
	return as == bs
}

// compareNumbers orders two numeric values. Integers compare exactly; a
// pair with a decimal on either side compares as float64.
func compareNumbers(a, b any) (int, bool) {
	if ai, ok := asInt(a); ok {
		if bi, ok := asInt(b); ok {
			return cmp.Compare(ai, bi), true
		}
	}
	af, ok := asFloat(a)
	if !ok {
		return 0, false
	}
	bf, ok := asFloat(b)
	if !ok {
		return 0, false
	}
	return cmp.Compare(af, bf), true
}

// asFloat accepts any numeric value or numeric string except NaN and infinities.
func asFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		i, ok := asInt(v)
		if !ok {
			return 0, false
		}
		return float64(i), true
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// asInt accepts Go integers and decimal strings.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}
