package graphsync

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/syssam/graphsync/descriptor"
	"github.com/syssam/graphsync/schema/field"
)

// Validator checks a property value. Arguments declared with
// field.Sibling arrive resolved to the sibling's value. Returning false
// fails with the rule's message; returning an error fails with the
// error's message.
type Validator func(ctx context.Context, value any, args []any) (bool, error)

// RecordValidator checks a whole record against its prior state. was is
// nil on create, is is nil on destroy.
type RecordValidator func(ctx context.Context, is, was Record, e *Entity) (bool, error)

type recordRule struct {
	id        string
	fn        RecordValidator
	message   string
	onCreate  bool
	onUpdate  bool
	onDestroy bool
}

func (r *recordRule) applies(op operation) bool {
	switch op {
	case opCreate:
		return r.onCreate
	case opUpdate:
		return r.onUpdate
	default:
		return r.onDestroy
	}
}

// ValidateOption configures a record validation.
type ValidateOption func(*recordRule)

// OnCreate sets whether the validation runs on create.
func OnCreate(b bool) ValidateOption { return func(r *recordRule) { r.onCreate = b } }

// OnUpdate sets whether the validation runs on update.
func OnUpdate(b bool) ValidateOption { return func(r *recordRule) { r.onUpdate = b } }

// OnDestroy sets whether the validation runs on destroy.
func OnDestroy(b bool) ValidateOption { return func(r *recordRule) { r.onDestroy = b } }

// OnSave sets both OnCreate and OnUpdate.
func OnSave(b bool) ValidateOption {
	return func(r *recordRule) { r.onCreate, r.onUpdate = b, b }
}

// WithMessage sets the message reported when the validation returns false.
func WithMessage(msg string) ValidateOption { return func(r *recordRule) { r.message = msg } }

type operation uint8

const (
	opCreate operation = iota
	opUpdate
	opDestroy
)

func (o operation) String() string {
	switch o {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	default:
		return "destroy"
	}
}

// validation walks one candidate/prior graph pair.
type validation struct {
	m    *Mapper
	errs []FieldError
}

// validate validates the graph pair rooted at t. It returns a
// ValidationError carrying every failure, or the first enum violation
// alone.
func (m *Mapper) validate(ctx context.Context, t *descriptor.Table, is, was Record) error {
	v := &validation{m: m}
	if err := v.node(ctx, t, is, was, ""); err != nil {
		return err
	}
	if len(v.errs) > 0 {
		return &ValidationError{Errors: v.errs}
	}
	return nil
}

func (v *validation) fail(path, msg string) {
	v.errs = append(v.errs, FieldError{Path: path, Message: msg})
}

func (v *validation) node(ctx context.Context, t *descriptor.Table, is, was Record, path string) error {
	op := opUpdate
	switch {
	case was == nil:
		op = opCreate
	case is == nil:
		op = opDestroy
	}
	if is != nil {
		if err := checkEnums(t, is, path); err != nil {
			return err
		}
		if err := v.properties(ctx, t, is, path); err != nil {
			return err
		}
	}
	if e := v.m.entityOf(t); e != nil {
		for _, r := range e.behavior.Load().validations {
			if !r.applies(op) {
				continue
			}
			ok, err := r.fn(ctx, is, was, e)
			switch {
			case err != nil:
				v.fail(path, err.Error())
			case !ok && r.message != "":
				v.fail(path, r.message)
			case !ok:
				v.fail(path, "Invalid "+r.id)
			}
		}
	}
	for _, a := range t.Associations {
		if err := v.association(ctx, a, is, was, path); err != nil {
			return err
		}
	}
	return nil
}

func (v *validation) association(ctx context.Context, a *descriptor.Association, is, was Record, path string) error {
	prefix := a.Name
	if path != "" {
		prefix = path + "." + a.Name
	}
	var candidates []Record
	if is != nil {
		val, ok := is[a.Name]
		if !ok && was != nil {
			// Absent on update: the association is left unchanged.
			return nil
		}
		list, err := asRecords(val)
		if err != nil {
			return &InvalidDataError{Entity: a.Child.Name, Path: prefix, Msg: err.Error()}
		}
		candidates = list
	}
	var priors []Record
	if was != nil {
		list, err := asRecords(was[a.Name])
		if err != nil {
			return &InvalidDataError{Entity: a.Child.Name, Path: prefix, Msg: err.Error()}
		}
		priors = list
	}
	itemPath := func(i int) string {
		if a.Kind == descriptor.ToOne {
			return prefix
		}
		return fmt.Sprintf("%s[%d]", prefix, i)
	}
	matched := make([]bool, len(priors))
	for i, c := range candidates {
		var prior Record
		if j := matchPrior(a.Child, c, priors, matched); j >= 0 {
			prior = priors[j]
		}
		if err := v.node(ctx, a.Child, c, prior, itemPath(i)); err != nil {
			return err
		}
	}
	for j, p := range priors {
		if matched[j] {
			continue
		}
		if err := v.node(ctx, a.Child, nil, p, itemPath(j)); err != nil {
			return err
		}
	}
	return nil
}

// matchPrior returns the index of the first unmatched prior sharing the
// key of c, marking it matched, or -1.
func matchPrior(t *descriptor.Table, c Record, priors []Record, matched []bool) int {
	for j, p := range priors {
		if !matched[j] && t.SameKey(c, p) {
			matched[j] = true
			return j
		}
	}
	return -1
}

// checkEnums fails fast on the first enum property set to an undeclared
// value.
func checkEnums(t *descriptor.Table, is Record, path string) error {
	for _, fd := range t.Properties {
		if fd.Type != field.TypeEnum {
			continue
		}
		val, ok := is[fd.Name]
		if !ok || val == nil {
			continue
		}
		if s, isString := val.(string); isString && fd.HasEnum(s) {
			continue
		}
		return &ValidationError{Errors: []FieldError{{
			Path:    join(path, fd.Name),
			Message: fmt.Sprintf("Invalid value %v for enum %s", val, fd.Name),
		}}}
	}
	return nil
}

func (v *validation) properties(ctx context.Context, t *descriptor.Table, is Record, path string) error {
	for _, fd := range t.Properties {
		for _, r := range v.rules(fd) {
			fn, ok := v.m.validator(r.Name)
			if !ok {
				return &ConfigurationError{Entity: t.Name, Err: fmt.Errorf("property %q: unknown validator %q", fd.Name, r.Name)}
			}
			args := make([]any, len(r.Args))
			for i, arg := range r.Args {
				if ref, isRef := arg.(field.Ref); isRef {
					arg = is[ref.Field]
				}
				args[i] = arg
			}
			ok, err := fn(ctx, is[fd.Name], args)
			switch {
			case err != nil:
				v.fail(join(path, fd.Name), err.Error())
			case !ok && r.Message != "":
				v.fail(join(path, fd.Name), r.Message)
			case !ok:
				v.fail(join(path, fd.Name), "Invalid "+r.Name)
			}
		}
	}
	return nil
}

// rules returns the declared rules of fd, plus the one implied by its
// format when a validator of that name exists.
func (v *validation) rules(fd *field.Descriptor) []*field.Rule {
	rules := fd.Validations
	if fd.Format == "" {
		return rules
	}
	for _, r := range rules {
		if r.Name == fd.Format {
			return rules
		}
	}
	if _, ok := v.m.validator(fd.Format); !ok {
		return rules
	}
	return append(rules[:len(rules):len(rules)], &field.Rule{Name: fd.Format})
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// asRecords normalizes an association value to a list.
func asRecords(v any) ([]Record, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case Record:
		return []Record{v}, nil
	case []Record:
		return v, nil
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			r, ok := item.(Record)
			if !ok {
				return nil, fmt.Errorf("expected record, got %T", item)
			}
			out = append(out, r)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected record or list of records, got %T", v)
	}
}

var builtinValidators = map[string]Validator{
	"required":    required,
	"minLength":   minLength,
	"maxLength":   maxLength,
	"pattern":     pattern,
	"min":         minimum,
	"max":         maximum,
	"email":       email,
	"equalsField": equalsField,
}

func required(_ context.Context, v any, _ []any) (bool, error) {
	switch v := v.(type) {
	case nil:
		return false, nil
	case string:
		return v != "", nil
	}
	return true, nil
}

func minLength(_ context.Context, v any, args []any) (bool, error) {
	return length(v, args, "minLength", func(n, limit int) bool { return n >= limit })
}

func maxLength(_ context.Context, v any, args []any) (bool, error) {
	return length(v, args, "maxLength", func(n, limit int) bool { return n <= limit })
}

func length(v any, args []any, name string, cmp func(n, limit int) bool) (bool, error) {
	if v == nil {
		return true, nil
	}
	limit, err := intArg(args, name)
	if err != nil {
		return false, err
	}
	return cmp(utf8.RuneCountInString(fmt.Sprint(v)), limit), nil
}

var patterns sync.Map // string => *regexp.Regexp

func pattern(_ context.Context, v any, args []any) (bool, error) {
	if v == nil {
		return true, nil
	}
	if len(args) != 1 {
		return false, fmt.Errorf("pattern expects 1 argument, got %d", len(args))
	}
	var re *regexp.Regexp
	switch p := args[0].(type) {
	case *regexp.Regexp:
		re = p
	case string:
		if c, ok := patterns.Load(p); ok {
			re = c.(*regexp.Regexp)
			break
		}
		c, err := regexp.Compile(p)
		if err != nil {
			return false, fmt.Errorf("pattern: %w", err)
		}
		patterns.Store(p, c)
		re = c
	default:
		return false, fmt.Errorf("pattern expects a string argument, got %T", args[0])
	}
	return re.MatchString(fmt.Sprint(v)), nil
}

func minimum(_ context.Context, v any, args []any) (bool, error) {
	return bound(v, args, "min", func(n, limit float64) bool { return n >= limit })
}

func maximum(_ context.Context, v any, args []any) (bool, error) {
	return bound(v, args, "max", func(n, limit float64) bool { return n <= limit })
}

func bound(v any, args []any, name string, cmp func(n, limit float64) bool) (bool, error) {
	if v == nil {
		return true, nil
	}
	if len(args) != 1 {
		return false, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
	}
	limit, ok := number(args[0])
	if !ok {
		return false, fmt.Errorf("%s expects a numeric argument, got %T", name, args[0])
	}
	n, ok := number(v)
	if !ok {
		return false, nil
	}
	return cmp(n, limit), nil
}

var checker = validator.New()

func email(_ context.Context, v any, _ []any) (bool, error) {
	if v == nil {
		return true, nil
	}
	s, ok := v.(string)
	if !ok {
		return false, nil
	}
	return checker.Var(s, "email") == nil, nil
}

func equalsField(_ context.Context, v any, args []any) (bool, error) {
	if v == nil {
		return true, nil
	}
	if len(args) != 1 {
		return false, fmt.Errorf("equalsField expects 1 argument, got %d", len(args))
	}
	return fmt.Sprint(v) == fmt.Sprint(args[0]), nil
}

func intArg(args []any, name string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
	}
	n, ok := number(args[0])
	if !ok {
		return 0, fmt.Errorf("%s expects a numeric argument, got %T", name, args[0])
	}
	return int(n), nil
}

func number(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
