package postprocess

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/wehubfusion/ce2ocf/pkg/datamap"
	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
	"github.com/wehubfusion/ce2ocf/pkg/record"
	"github.com/wehubfusion/ce2ocf/pkg/resolver"
)

// Security levels for script post-processors
const (
	SecurityLevelStrict     = "strict"
	SecurityLevelStandard   = "standard"
	SecurityLevelPermissive = "permissive"
)

// ScriptConfig configures a JavaScript post-processor.
type ScriptConfig struct {
	// Type is the datamap type the script is attached to
	Type string `yaml:"type" json:"type"`

	// Field is the field of Type the script post-processes
	Field string `yaml:"field" json:"field"`

	// Source is the script body; File is read when Source is empty
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`

	// Timeout bounds a single run
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// SecurityLevel is strict, standard or permissive
	SecurityLevel string `yaml:"security_level,omitempty" json:"security_level,omitempty"`
}

// ApplyDefaults sets default values for configuration fields
func (c *ScriptConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.SecurityLevel == "" {
		c.SecurityLevel = SecurityLevelStandard
	}
}

// Validate checks if the configuration is valid
func (c *ScriptConfig) Validate() error {
	if c.Source == "" && c.File == "" {
		return fmt.Errorf("script source or file is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch c.SecurityLevel {
	case SecurityLevelStrict, SecurityLevelStandard, SecurityLevelPermissive:
	default:
		return fmt.Errorf("invalid security level: %s", c.SecurityLevel)
	}
	return nil
}

// ScriptError describes a failed script run.
type ScriptError struct {
	Kind    string
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Script is a compiled JavaScript post-processor. The script sees the resolved
// field as `value` and the source records as `records`, and its completion
// value becomes the field's new value. Helpers:
//
//	lookup(name, repetition) resolves another variable (null when absent)
//	missing(name)            marks the field as missing
//
// Each run gets a fresh sandboxed runtime, so a Script is safe for concurrent use.
type Script struct {
	config  ScriptConfig
	program *goja.Program
}

// NewScript compiles the script described by cfg.
func NewScript(cfg ScriptConfig) (*Script, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	source := cfg.Source
	name := "postprocessor.js"
	if source == "" {
		data, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read script %s: %w", cfg.File, err)
		}
		source = string(data)
		name = cfg.File
	}

	program, err := goja.Compile(name, source, true)
	if err != nil {
		return nil, &ScriptError{Kind: "syntax_error", Message: err.Error()}
	}
	return &Script{config: cfg, program: program}, nil
}

// Config returns the script's configuration with defaults applied.
func (s *Script) Config() ScriptConfig {
	return s.config
}

// Apply runs the script as a post-processor.
func (s *Script) Apply(value interface{}, records record.Records) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ScriptError{Kind: "internal_error", Message: fmt.Sprintf("panic during execution: %v", r)}
		}
	}()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := sandbox(vm, s.config.SecurityLevel); err != nil {
		return nil, err
	}

	var missingName string
	res := resolver.New(records)
	if err := vm.Set("lookup", func(name string, repetition int) interface{} {
		v, _ := res.Lookup(name, repetition)
		return v
	}); err != nil {
		return nil, err
	}
	if err := vm.Set("missing", func(call goja.FunctionCall) goja.Value {
		missingName = call.Argument(0).String()
		panic(vm.NewGoError(cerrors.NewVariableNotFound(missingName, 0)))
	}); err != nil {
		return nil, err
	}
	if err := vm.Set("value", value); err != nil {
		return nil, err
	}
	if err := vm.Set("records", recordsForScript(records)); err != nil {
		return nil, err
	}

	var (
		mu          sync.Mutex
		interrupted bool
	)
	timer := time.AfterFunc(s.config.Timeout, func() {
		mu.Lock()
		interrupted = true
		mu.Unlock()
		vm.Interrupt("execution timeout")
	})
	defer timer.Stop()

	out, err := vm.RunProgram(s.program)
	if err != nil {
		if missingName != "" {
			return nil, cerrors.NewVariableNotFound(missingName, 0)
		}
		mu.Lock()
		wasInterrupted := interrupted
		mu.Unlock()
		if wasInterrupted {
			return nil, &ScriptError{Kind: "timeout_error", Message: fmt.Sprintf("execution timeout after %s", s.config.Timeout)}
		}
		var exc *goja.Exception
		if errors.As(err, &exc) {
			return nil, &ScriptError{Kind: "runtime_error", Message: exc.Error()}
		}
		return nil, &ScriptError{Kind: "internal_error", Message: err.Error()}
	}
	return normalizeExport(out.Export()), nil
}

func recordsForScript(records record.Records) []interface{} {
	out := make([]interface{}, len(records))
	for i, r := range records {
		values := make([]interface{}, len(r.Values))
		for j, v := range r.Values {
			values[j] = v
		}
		var rep interface{}
		if r.Repetition != nil {
			rep = *r.Repetition
		}
		out[i] = map[string]interface{}{"name": r.Name, "repetition": rep, "values": values}
	}
	return out
}

// normalizeExport turns goja's exported numbers into the int and float64 values
// the rest of the pipeline uses.
func normalizeExport(v interface{}) interface{} {
	switch val := v.(type) {
	case int64:
		return int(val)
	case []interface{}:
		for i := range val {
			val[i] = normalizeExport(val[i])
		}
		return val
	case map[string]interface{}:
		for k := range val {
			val[k] = normalizeExport(val[k])
		}
		return val
	default:
		return v
	}
}

var nodeGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

var frozenBuiltins = []string{
	"Object",
	"Array",
	"Function",
	"String",
	"Number",
	"Boolean",
	"Date",
	"RegExp",
	"Error",
	"Math",
	"JSON",
}

const freezeScript = `(function(obj) {
	if (obj && (typeof obj === 'object' || typeof obj === 'function')) {
		Object.freeze(obj);
		if (obj.prototype) {
			Object.freeze(obj.prototype);
		}
	}
})`

// sandbox removes host globals, freezes builtins and, in strict mode, disables eval.
func sandbox(vm *goja.Runtime, level string) error {
	for _, name := range nodeGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	if level == SecurityLevelStrict {
		if err := vm.Set("eval", func(goja.FunctionCall) goja.Value {
			panic(vm.NewGoError(&ScriptError{Kind: "security_error", Message: "eval is not allowed in strict security mode"}))
		}); err != nil {
			return err
		}
	}

	if level == SecurityLevelPermissive {
		return nil
	}

	fnVal, err := vm.RunString(freezeScript)
	if err != nil {
		return fmt.Errorf("failed to create freeze function: %w", err)
	}
	freeze, ok := goja.AssertFunction(fnVal)
	if !ok {
		return fmt.Errorf("freeze function is not a function")
	}
	for _, name := range frozenBuiltins {
		obj := vm.Get(name)
		if obj == nil || goja.IsUndefined(obj) {
			continue
		}
		if _, err := freeze(goja.Undefined(), obj); err != nil {
			return fmt.Errorf("failed to freeze %s: %w", name, err)
		}
	}
	return nil
}

// CompileScripts compiles every configured script.
func CompileScripts(cfgs []ScriptConfig) ([]*Script, error) {
	scripts := make([]*Script, 0, len(cfgs))
	for i, cfg := range cfgs {
		if strings.TrimSpace(cfg.Type) == "" || strings.TrimSpace(cfg.Field) == "" {
			return nil, fmt.Errorf("script %d: type and field are required", i)
		}
		s, err := NewScript(cfg)
		if err != nil {
			return nil, fmt.Errorf("script %d (%s.%s): %w", i, cfg.Type, cfg.Field, err)
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// RegisterScripts attaches each script to reg under its configured type and
// field, replacing any processor already registered there.
func RegisterScripts(reg *datamap.Registry, scripts []*Script) {
	for _, s := range scripts {
		reg.For(datamap.TypeID(s.config.Type)).Register(s.config.Field, s.Apply)
	}
}
