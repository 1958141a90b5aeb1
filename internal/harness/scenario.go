package harness

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Scenario file formats.
const (
	FormatYAML = "yaml"
	FormatCUE  = "cue"
)

// MaxRangeSpan bounds to - from of a range source. A range emits its whole
// interval in one task, before the event quota can end the run.
const MaxRangeSpan = 10000

// LoadError is returned when a scenario file cannot be read, parsed or
// validated.
type LoadError struct {
	Path    string
	Code    string
	Message string
}

// Load error codes.
const (
	ErrCodeRead    = "E_READ"
	ErrCodeParse   = "E_PARSE"
	ErrCodeSchema  = "E_SCHEMA"
	ErrCodeInvalid = "E_INVALID"
)

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FormatOf returns the scenario format implied by the file extension, or ""
// if the file is not a scenario.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".cue":
		return FormatCUE
	default:
		return ""
	}
}

// LoadScenario reads, parses and validates a scenario file. The format
// follows the extension: .yaml/.yml or .cue.
func LoadScenario(path string) (*Scenario, error) {
	format := FormatOf(path)
	if format == "" {
		return nil, &LoadError{Path: path, Code: ErrCodeRead, Message: "unsupported scenario extension"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Code: ErrCodeRead, Message: err.Error()}
	}
	s, err := ParseScenario(data, format)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	return s, nil
}

// ParseScenario parses and validates scenario data in the given format.
//
// YAML is decoded strictly: unknown fields are errors, which catches typos
// like "assertion:" for "assertions:". Every scenario, whatever its format,
// is then checked against the embedded CUE schema.
func ParseScenario(data []byte, format string) (*Scenario, error) {
	ctx := cuecontext.New()
	schema, err := loadSchema(ctx)
	if err != nil {
		return nil, err
	}

	var s Scenario
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, &LoadError{Code: ErrCodeParse, Message: err.Error()}
		}
		if err := checkSchema(schema, ctx.Encode(&s)); err != nil {
			return nil, err
		}
	case FormatCUE:
		v := ctx.CompileBytes(data, cue.Filename("scenario.cue"))
		if err := v.Err(); err != nil {
			return nil, &LoadError{Code: ErrCodeParse, Message: err.Error()}
		}
		if err := checkSchema(schema, v); err != nil {
			return nil, err
		}
		if err := v.Decode(&s); err != nil {
			return nil, &LoadError{Code: ErrCodeParse, Message: err.Error()}
		}
	default:
		return nil, &LoadError{Code: ErrCodeParse, Message: fmt.Sprintf("unknown format %q", format)}
	}

	if err := validateScenario(&s); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: err.Error()}
	}
	return &s, nil
}

// FindScenarios returns every scenario file under dir, sorted by path.
// Directories named golden are skipped.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		if FormatOf(path) != "" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// loadSchema compiles the embedded schema in ctx and returns #Scenario.
// A cue.Context is not safe for concurrent use, so every parse builds its own.
func loadSchema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("embedded schema: %v", err)}
	}
	return v.LookupPath(cue.ParsePath("#Scenario")), nil
}

// checkSchema unifies v with #Scenario and requires a concrete result.
func checkSchema(schema, v cue.Value) error {
	if err := v.Err(); err != nil {
		return &LoadError{Code: ErrCodeSchema, Message: err.Error()}
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &LoadError{Code: ErrCodeSchema, Message: err.Error()}
	}
	return nil
}

// validateScenario checks what the schema cannot express.
func validateScenario(s *Scenario) error {
	if s.CloseAt > s.RunUntil {
		return fmt.Errorf("close_at %d is after run_until %d", s.CloseAt, s.RunUntil)
	}
	if err := validateSource("source", s.Source); err != nil {
		return err
	}
	for i, op := range s.Ops {
		if err := validateOp(i, op); err != nil {
			return err
		}
	}
	for i, e := range s.Expect {
		n := 0
		if e.Value != nil {
			n++
		}
		if e.Done {
			n++
		}
		if e.Error != "" {
			n++
		}
		if n != 1 {
			return fmt.Errorf("expect[%d]: exactly one of value, done or error is required", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateSource(where string, src SourceSpec) error {
	if src.Kind == SourceRange {
		if src.To < src.From {
			return fmt.Errorf("%s: range to %d is before from %d", where, src.To, src.From)
		}
		// The unsigned difference of an ordered pair cannot wrap.
		if span := uint64(src.To - src.From); span > MaxRangeSpan {
			return fmt.Errorf("%s: range spans %d values, more than %d", where, span, MaxRangeSpan)
		}
	}
	for i, child := range src.Sources {
		if err := validateSource(fmt.Sprintf("%s.sources[%d]", where, i), child); err != nil {
			return err
		}
	}
	return nil
}

func validateOp(index int, op OpSpec) error {
	var fns []string
	switch op.Op {
	case OpMap:
		fns = []string{"add", "mul", "neg"}
	case OpFilter:
		fns = []string{"even", "odd", "gt", "lt"}
	case OpTakeWhile, OpSkipWhile:
		fns = []string{"gt", "lt"}
	case OpFold:
		fns = []string{"sum", "product", "count"}
	case OpZip, OpCombineLatest:
		fns = []string{"sum", "product", "first", "second"}
	case OpDelay, OpThrottle:
		if op.Ticks <= 0 {
			return fmt.Errorf("ops[%d]: %s requires ticks > 0", index, op.Op)
		}
	}
	if fns != nil && !contains(fns, op.Fn) {
		return fmt.Errorf("ops[%d]: %s: fn must be one of %s, got %q", index, op.Op, strings.Join(fns, "|"), op.Fn)
	}
	if op.With != nil {
		if err := validateSource(fmt.Sprintf("ops[%d].with", index), *op.With); err != nil {
			return err
		}
	}
	if op.Inner != nil {
		if err := validateSource(fmt.Sprintf("ops[%d].inner", index), *op.Inner); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertValues:
		if a.Values == nil {
			return fmt.Errorf("assertions[%d]: values is required for values", index)
		}
	case AssertCount, AssertLiveContexts:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
	case AssertTerminal:
		if a.Terminal == "" {
			return fmt.Errorf("assertions[%d]: terminal is required for terminal", index)
		}
	case AssertMaxEvents:
		if a.Max <= 0 {
			return fmt.Errorf("assertions[%d]: max is required for max_events", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
