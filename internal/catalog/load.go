package catalog

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cubist/internal/cube"
)

// LoadError is a catalog file error with its CUE source position.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a catalog from a CUE file:
//
//	catalog: {
//		order: ["borough", "year"]
//		dimensions: {
//			borough: {kind: "string", values: ["BRONX", "QUEENS"]}
//			year: {kind: "int", min: 2012, max: 2024}
//		}
//		measures: killed: op: "sum"
//	}
//
// Dimension order follows order when present, otherwise field order.
func Load(path string, opts ...Option) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return LoadBytes(path, data, opts...)
}

// LoadBytes compiles CUE source; filename is used for error positions.
func LoadBytes(filename string, data []byte, opts ...Option) (*Catalog, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(data, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, wrapLoad(formatCUEError(err))
	}

	v := root.LookupPath(cue.ParsePath("catalog"))
	if !v.Exists() {
		return nil, wrapLoad(&LoadError{Field: "catalog", Message: "catalog is required", Pos: root.Pos()})
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, wrapLoad(formatCUEError(err))
	}

	dims, err := parseDimensions(v)
	if err != nil {
		return nil, wrapLoad(err)
	}
	measures, err := parseMeasures(v)
	if err != nil {
		return nil, wrapLoad(err)
	}

	return New(dims, measures, opts...)
}

func wrapLoad(err error) error {
	return &cube.Error{
		Code:    cube.ErrCodeConfiguration,
		Message: "invalid catalog",
		Err:     err,
	}
}

func parseDimensions(v cue.Value) ([]Dimension, error) {
	dimsVal := v.LookupPath(cue.ParsePath("dimensions"))
	if !dimsVal.Exists() {
		return nil, &LoadError{Field: "dimensions", Message: "dimensions are required", Pos: v.Pos()}
	}

	iter, err := dimsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	byName := make(map[string]Dimension)
	var declared []string
	for iter.Next() {
		d, err := parseDimension(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		byName[d.Name] = d
		declared = append(declared, d.Name)
	}

	orderVal := v.LookupPath(cue.ParsePath("order"))
	if !orderVal.Exists() {
		dims := make([]Dimension, len(declared))
		for i, name := range declared {
			dims[i] = byName[name]
		}
		return dims, nil
	}

	order, err := parseStrings(orderVal)
	if err != nil {
		return nil, err
	}
	if len(order) != len(declared) {
		return nil, &LoadError{
			Field:   "order",
			Message: fmt.Sprintf("order lists %d dimensions, %d are declared", len(order), len(declared)),
			Pos:     orderVal.Pos(),
		}
	}
	dims := make([]Dimension, 0, len(order))
	used := make(map[string]bool, len(order))
	for _, name := range order {
		d, ok := byName[name]
		if !ok || used[name] {
			return nil, &LoadError{
				Field:   "order",
				Message: fmt.Sprintf("%q is not a declared dimension or is listed twice", name),
				Pos:     orderVal.Pos(),
			}
		}
		used[name] = true
		dims = append(dims, d)
	}
	return dims, nil
}

func parseDimension(name string, v cue.Value) (Dimension, error) {
	d := Dimension{Name: name, Kind: KindString}

	if kindVal := v.LookupPath(cue.ParsePath("kind")); kindVal.Exists() {
		kind, err := kindVal.String()
		if err != nil {
			return d, formatCUEError(err)
		}
		d.Kind = Kind(kind)
	}

	if valuesVal := v.LookupPath(cue.ParsePath("values")); valuesVal.Exists() {
		values, err := parseStrings(valuesVal)
		if err != nil {
			return d, err
		}
		d.Values = values
	}

	minVal := v.LookupPath(cue.ParsePath("min"))
	maxVal := v.LookupPath(cue.ParsePath("max"))
	if minVal.Exists() != maxVal.Exists() {
		return d, &LoadError{
			Field:   "dimensions." + name,
			Message: "min and max must be declared together",
			Pos:     v.Pos(),
		}
	}
	if minVal.Exists() {
		lo, err := minVal.Int64()
		if err != nil {
			return d, formatCUEError(err)
		}
		hi, err := maxVal.Int64()
		if err != nil {
			return d, formatCUEError(err)
		}
		d.Range = &Range{Min: lo, Max: hi}
	}

	if nullVal := v.LookupPath(cue.ParsePath("nullable")); nullVal.Exists() {
		nullable, err := nullVal.Bool()
		if err != nil {
			return d, formatCUEError(err)
		}
		d.Nullable = nullable
	}

	return d, nil
}

func parseMeasures(v cue.Value) ([]Measure, error) {
	measuresVal := v.LookupPath(cue.ParsePath("measures"))
	if !measuresVal.Exists() {
		return nil, nil
	}

	iter, err := measuresVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var measures []Measure
	for iter.Next() {
		m := Measure{Name: iter.Label(), Op: OpSum}
		if opVal := iter.Value().LookupPath(cue.ParsePath("op")); opVal.Exists() {
			op, err := opVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			m.Op = op
		}
		measures = append(measures, m)
	}
	return measures, nil
}

func parseStrings(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError keeps the first CUE error and its position.
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
		return &LoadError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
