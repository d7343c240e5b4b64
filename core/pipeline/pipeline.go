// Package pipeline defines the named conversion configurations and the
// dictionary stages each one runs.
package pipeline

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/FocuswithJustin/zhconv/core/dict"
	"github.com/FocuswithJustin/zhconv/core/errors"
	"github.com/FocuswithJustin/zhconv/core/punct"
)

// Name identifies a conversion configuration.
type Name string

// Built-in configurations.
const (
	S2T   Name = "s2t"
	T2S   Name = "t2s"
	S2TW  Name = "s2tw"
	TW2S  Name = "tw2s"
	S2TWP Name = "s2twp"
	TW2SP Name = "tw2sp"
	S2HK  Name = "s2hk"
	HK2S  Name = "hk2s"
	T2TW  Name = "t2tw"
	TW2T  Name = "tw2t"
	T2TWP Name = "t2twp"
	TW2TP Name = "tw2tp"
	T2HK  Name = "t2hk"
	HK2T  Name = "hk2t"
	T2JP  Name = "t2jp"
	JP2T  Name = "jp2t"
)

var builtinNames = map[Name]bool{
	S2T: true, T2S: true, S2TW: true, TW2S: true, S2TWP: true, TW2SP: true,
	S2HK: true, HK2S: true, T2TW: true, TW2T: true, T2TWP: true, TW2TP: true,
	T2HK: true, HK2T: true, T2JP: true, JP2T: true,
}

// Known reports whether n is one of the built-in configuration names.
func (n Name) Known() bool {
	return builtinNames[n]
}

// Fallback is used by callers that substitute an invalid name.
const Fallback = S2T

//go:embed pipelines.def
var builtinDef []byte

// Config is one resolved configuration. Each element of Stages lists the
// tables merged into that stage.
type Config struct {
	Name               Name
	Stages             [][]string
	Punct              punct.Direction
	PunctuationDefault bool
}

// Tables returns every table identifier the configuration uses, in order
// of first use.
func (c Config) Tables() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, st := range c.Stages {
		for _, id := range st {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// String renders the configuration in definition syntax.
func (c Config) String() string {
	stages := make([]string, len(c.Stages))
	for i, st := range c.Stages {
		stages[i] = strings.Join(st, " ")
	}
	s := fmt.Sprintf("%s = %s", c.Name, strings.Join(stages, " > "))
	if c.Punct != punct.None {
		s += " punct " + c.Punct.String()
		if c.PunctuationDefault {
			s += " on"
		}
	}
	return s
}

// Registry is an immutable set of configurations.
type Registry struct {
	order   []Name
	configs map[Name]Config
}

// NewRegistry parses and validates a pipeline definition. Every name must
// be one of the built-in names and defined once, every stage must list at
// least one known table, and the punctuation direction must be s2t or t2s.
// A definition may redefine a subset of the names.
func NewRegistry(def []byte) (*Registry, error) {
	file, err := defParser.ParseBytes("pipelines.def", def)
	if err != nil {
		return nil, &errors.ParseError{Format: "pipeline definition", Message: err.Error(), Err: err}
	}

	r := &Registry{configs: make(map[Name]Config)}
	for _, p := range file.Pipelines {
		name := Name(p.Name)
		if !name.Known() {
			return nil, errors.NewParse("pipeline definition", p.Pos.String(),
				fmt.Sprintf("unknown pipeline name %q", p.Name))
		}
		if _, dup := r.configs[name]; dup {
			return nil, errors.NewParse("pipeline definition", p.Pos.String(),
				fmt.Sprintf("pipeline %q defined more than once", p.Name))
		}

		cfg := Config{Name: name}
		for i, st := range p.Stages {
			if len(st.Tables) == 0 {
				return nil, errors.NewParse("pipeline definition", p.Pos.String(),
					fmt.Sprintf("pipeline %q stage %d is empty", p.Name, i+1))
			}
			for _, id := range st.Tables {
				if !dict.IsTableID(id) {
					return nil, errors.NewParse("pipeline definition", p.Pos.String(),
						fmt.Sprintf("pipeline %q uses unknown table %q", p.Name, id))
				}
			}
			cfg.Stages = append(cfg.Stages, append([]string(nil), st.Tables...))
		}

		if p.Punct != nil {
			d, ok := punct.ParseDirection(p.Punct.Direction)
			if !ok || d == punct.None {
				return nil, errors.NewParse("pipeline definition", p.Pos.String(),
					fmt.Sprintf("pipeline %q has invalid punct direction %q", p.Name, p.Punct.Direction))
			}
			cfg.Punct = d
			cfg.PunctuationDefault = p.Punct.Default
		}

		r.configs[name] = cfg
		r.order = append(r.order, name)
	}

	if len(r.order) == 0 {
		return nil, errors.NewParse("pipeline definition", "", "no pipelines defined")
	}
	return r, nil
}

var (
	defaultRegistry     *Registry
	defaultRegistryErr  error
	defaultRegistryOnce sync.Once
)

// Default returns the registry built from the bundled definition.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry, defaultRegistryErr = NewRegistry(builtinDef)
	})
	if defaultRegistryErr != nil {
		panic(fmt.Sprintf("pipeline: bundled definition is invalid: %v", defaultRegistryErr))
	}
	return defaultRegistry
}

// Resolve returns the configuration for name.
func (r *Registry) Resolve(name string) (Config, error) {
	cfg, ok := r.configs[Name(name)]
	if !ok {
		return Config{}, errors.NewUnknownConfig(name)
	}
	return cfg, nil
}

// Names lists configuration names in definition order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	for i, n := range r.order {
		out[i] = string(n)
	}
	return out
}

// IsValid reports whether name is a known configuration.
func (r *Registry) IsValid(name string) bool {
	_, ok := r.configs[Name(name)]
	return ok
}
