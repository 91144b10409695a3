package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ParseCUE compiles a CUE document and extracts every model declared under
// the top-level "model" struct:
//
//	model: "greet-on-login": {
//		events: [{id: "login", plugin: "host_event", config: event: "user:login"}]
//		...
//	}
func ParseCUE(filename string, src []byte) ([]RawModel, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := v.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, nil
	}
	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var models []RawModel
	for iter.Next() {
		raw, err := CompileCUE(iter.Value())
		if err != nil {
			return nil, err
		}
		models = append(models, *raw)
	}
	return models, nil
}

// CompileCUE parses a CUE value into a RawModel.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The model id is taken from the "id" field, or from the struct label when
// the field is absent:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: "greet": { ... }`)
//	raw, err := CompileCUE(v.LookupPath(cue.ParsePath(`model."greet"`)))
func CompileCUE(v cue.Value) (*RawModel, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	raw := &RawModel{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		raw.ID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	if raw.ID, err = optionalString(v, "id", raw.ID); err != nil {
		return nil, err
	}
	if raw.Label, err = optionalString(v, "label", ""); err != nil {
		return nil, err
	}
	if raw.Status, err = optionalString(v, "status", ""); err != nil {
		return nil, err
	}

	err = eachListItem(v, "events", func(field string, item cue.Value) error {
		e := RawEvent{}
		var err error
		if e.ID, err = requiredString(item, field, "id"); err != nil {
			return err
		}
		if e.Plugin, err = requiredString(item, field, "plugin"); err != nil {
			return err
		}
		if e.Config, err = configMap(item, field); err != nil {
			return err
		}
		if p := item.LookupPath(cue.ParsePath("priority")); p.Exists() {
			n, err := p.Int64()
			if err != nil {
				return &CompileError{
					Field:   field + ".priority",
					Message: "priority must be an integer",
					Pos:     p.Pos(),
				}
			}
			e.Priority = n
		}
		raw.Events = append(raw.Events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachListItem(v, "conditions", func(field string, item cue.Value) error {
		c := RawCondition{}
		var err error
		if c.ID, err = requiredString(item, field, "id"); err != nil {
			return err
		}
		if c.Plugin, err = requiredString(item, field, "plugin"); err != nil {
			return err
		}
		if c.Config, err = configMap(item, field); err != nil {
			return err
		}
		if n := item.LookupPath(cue.ParsePath("negated")); n.Exists() {
			b, err := n.Bool()
			if err != nil {
				return formatCUEError(err)
			}
			c.Negated = b
		}
		raw.Conditions = append(raw.Conditions, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachListItem(v, "actions", func(field string, item cue.Value) error {
		a := RawAction{}
		var err error
		if a.ID, err = requiredString(item, field, "id"); err != nil {
			return err
		}
		if a.Plugin, err = requiredString(item, field, "plugin"); err != nil {
			return err
		}
		if a.Config, err = configMap(item, field); err != nil {
			return err
		}
		raw.Actions = append(raw.Actions, a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachListItem(v, "gateways", func(field string, item cue.Value) error {
		id, err := requiredString(item, field, "id")
		if err != nil {
			return err
		}
		raw.Gateways = append(raw.Gateways, RawGateway{ID: id})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachListItem(v, "successors", func(field string, item cue.Value) error {
		s := RawSuccessor{}
		var err error
		if s.ID, err = optionalString(item, "id", ""); err != nil {
			return err
		}
		if s.Source, err = requiredString(item, field, "source"); err != nil {
			return err
		}
		if s.Target, err = requiredString(item, field, "target"); err != nil {
			return err
		}
		if s.Label, err = optionalString(item, "label", ""); err != nil {
			return err
		}
		raw.Successors = append(raw.Successors, s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return raw, nil
}

func eachListItem(v cue.Value, name string, fn func(field string, item cue.Value) error) error {
	listVal := v.LookupPath(cue.ParsePath(name))
	if !listVal.Exists() {
		return nil
	}
	iter, err := listVal.List()
	if err != nil {
		return &CompileError{
			Field:   name,
			Message: fmt.Sprintf("%s must be a list", name),
			Pos:     listVal.Pos(),
		}
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(fmt.Sprintf("%s[%d]", name, i), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func requiredString(v cue.Value, parent, name string) (string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", &CompileError{
			Field:   parent + "." + name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := f.String()
	if err != nil {
		return "", &CompileError{
			Field:   parent + "." + name,
			Message: name + " must be a string",
			Pos:     f.Pos(),
		}
	}
	return s, nil
}

func optionalString(v cue.Value, name, fallback string) (string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return fallback, nil
	}
	s, err := f.String()
	if err != nil {
		return "", &CompileError{
			Field:   name,
			Message: name + " must be a string",
			Pos:     f.Pos(),
		}
	}
	return s, nil
}

func configMap(v cue.Value, parent string) (map[string]any, error) {
	cfgVal := v.LookupPath(cue.ParsePath("config"))
	if !cfgVal.Exists() {
		return nil, nil
	}
	out, err := cueToGo(cfgVal, parent+".config")
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, &CompileError{
			Field:   parent + ".config",
			Message: "config must be a struct",
			Pos:     cfgVal.Pos(),
		}
	}
	return m, nil
}

// cueToGo converts a concrete CUE value to plain Go data. Decimals come back
// as float64 and are sorted into Int or Float by ir.FromGo.
func cueToGo(v cue.Value, field string) (any, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return s, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return n, nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return f, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := []any{}
		for i := 0; iter.Next(); i++ {
			item, err := cueToGo(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := map[string]any{}
		for iter.Next() {
			key := iter.Selector().String()
			key = strings.Trim(key, `"`)
			item, err := cueToGo(iter.Value(), field+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = item
		}
		return out, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
