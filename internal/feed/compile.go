package feed

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/xll-gen/rtd/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Generator names how a topic's values are produced.
type Generator string

const (
	GeneratorConstant Generator = "constant"
	GeneratorCounter  Generator = "counter"
	GeneratorClock    Generator = "clock"
	GeneratorEcho     Generator = "echo"
)

// Spec is a compiled feed.
type Spec struct {
	Name     string
	Delay    time.Duration
	Interval time.Duration
	Topics   []Topic
}

// Topic is one declared topic.
type Topic struct {
	Key       int32
	Args      []string
	Generator Generator
	Value     ir.Value // constant
	Start     int64    // counter
	Step      int64    // counter; 0 means 1
	Layout    string   // clock; empty means time.RFC3339
	Pos       token.Pos
}

// CompileError is a feed compile error with its CUE position.
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

// LoadFile reads and compiles a feed file.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return CompileBytes(data, path)
}

// CompileBytes compiles CUE source containing a top-level feed field.
func CompileBytes(src []byte, filename string) (*Spec, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("feed schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	feedVal := v.LookupPath(cue.ParsePath("feed"))
	if !feedVal.Exists() {
		return nil, &CompileError{Field: "feed", Message: "feed is required", Pos: v.Pos()}
	}

	unified := schema.LookupPath(cue.ParsePath("#Feed")).Unify(feedVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(unified)
}

// Compile parses a concrete feed value. The value is expected to satisfy
// #Feed already.
func Compile(v cue.Value) (*Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &Spec{}
	var err error

	if spec.Name, err = v.LookupPath(cue.ParsePath("name")).String(); err != nil {
		return nil, formatCUEError(err)
	}
	if spec.Delay, err = parseDuration(v, "delay"); err != nil {
		return nil, err
	}
	if spec.Interval, err = parseDuration(v, "interval"); err != nil {
		return nil, err
	}

	iter, err := v.LookupPath(cue.ParsePath("topics")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		t, err := compileTopic(iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Topics = append(spec.Topics, t)
	}

	return spec, nil
}

func parseDuration(v cue.Value, field string) (time.Duration, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	s, err := fv.String()
	if err != nil {
		return 0, formatCUEError(err)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()}
	}
	return d, nil
}

func compileTopic(v cue.Value) (Topic, error) {
	t := Topic{Pos: v.Pos()}

	key, err := v.LookupPath(cue.ParsePath("key")).Int64()
	if err != nil {
		return t, formatCUEError(err)
	}
	t.Key = int32(key)

	gen, err := v.LookupPath(cue.ParsePath("generator")).String()
	if err != nil {
		return t, formatCUEError(err)
	}
	t.Generator = Generator(gen)

	if args := v.LookupPath(cue.ParsePath("args")); args.Exists() {
		if err := args.Decode(&t.Args); err != nil {
			return t, formatCUEError(err)
		}
	}

	if val := v.LookupPath(cue.ParsePath("value")); val.Exists() {
		if t.Value, err = compileValue(val); err != nil {
			return t, err
		}
	}

	for field, dst := range map[string]*int64{"start": &t.Start, "step": &t.Step} {
		if fv := v.LookupPath(cue.ParsePath(field)); fv.Exists() {
			if *dst, err = fv.Int64(); err != nil {
				return t, formatCUEError(err)
			}
		}
	}

	if lv := v.LookupPath(cue.ParsePath("layout")); lv.Exists() {
		if t.Layout, err = lv.String(); err != nil {
			return t, formatCUEError(err)
		}
	}

	return t, nil
}

// compileValue converts a concrete CUE value to a cell value.
func compileValue(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.Absent{}, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Real(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Text(s), nil
	case cue.StructKind:
		code, err := v.LookupPath(cue.ParsePath("error")).Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		val, err := ir.ValueOf(map[string]any{"error": code})
		if err != nil {
			return nil, &CompileError{Field: "value", Message: err.Error(), Pos: v.Pos()}
		}
		return val, nil
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind %s", v.Kind()),
			Pos:     v.Pos(),
		}
	}
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

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
