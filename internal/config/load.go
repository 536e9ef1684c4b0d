package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Problem is one schema violation.
type Problem struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// LoadError reports why a configuration file was rejected.
type LoadError struct {
	File     string
	Problems []Problem
}

func (e *LoadError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("%s: invalid configuration", e.File)
	}
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		if p.Path != "" {
			msgs[i] = p.Path + ": " + p.Message
		} else {
			msgs[i] = p.Message
		}
	}
	return fmt.Sprintf("%s: %s", e.File, strings.Join(msgs, "; "))
}

// Load reads path and applies it over Default(). An empty path returns
// the defaults. Validation failures are *LoadError.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	ctx := cuecontext.New()
	v, err := compile(ctx, path, data)
	if err != nil {
		return cfg, err
	}

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cfg, fmt.Errorf("compile config schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cfg, &LoadError{File: path, Problems: problems(err)}
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return cfg, &LoadError{File: path, Problems: problems(err)}
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, &LoadError{File: path, Problems: []Problem{{Message: err.Error()}}}
	}
	if err := cfg.Check(); err != nil {
		return cfg, &LoadError{File: path, Problems: []Problem{{Message: err.Error()}}}
	}
	return cfg, nil
}

// compile turns a CUE, YAML or JSON file into a CUE value.
func compile(ctx *cue.Context, path string, data []byte) (cue.Value, error) {
	var v cue.Value
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue", ".json":
		v = ctx.CompileBytes(data, cue.Filename(path))
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cue.Value{}, &LoadError{File: path, Problems: []Problem{{Message: err.Error()}}}
		}
		if doc == nil {
			doc = map[string]any{}
		}
		v = ctx.Encode(doc)
	default:
		return cue.Value{}, fmt.Errorf("unsupported config format %q (want .cue, .yaml, .yml or .json)", filepath.Ext(path))
	}
	if err := v.Err(); err != nil {
		return cue.Value{}, &LoadError{File: path, Problems: problems(err)}
	}
	return v, nil
}

func problems(err error) []Problem {
	var out []Problem
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		p := Problem{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		if pos := e.Position(); pos.IsValid() {
			p.Line = pos.Line()
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		out = append(out, Problem{Message: err.Error()})
	}
	return out
}
