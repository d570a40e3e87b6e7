// Package template provides prompt template rendering for drover.
//
// There is exactly one rendering implementation in the system. Every
// phase-execution path goes through Engine.Render, so a variable added
// here is visible everywhere a prompt is produced.
package template

import "maps"

// Vars is an immutable bag of named template values. The With methods
// return copies; a Vars value handed to the engine can never be mutated
// by a later builder step.
type Vars struct {
	values map[string]string
	flags  map[string]bool
}

// NewVars creates an empty Vars.
func NewVars() Vars {
	return Vars{
		values: map[string]string{},
		flags:  map[string]bool{},
	}
}

// With returns a copy with the named value set.
func (v Vars) With(name, value string) Vars {
	out := v.clone()
	out.values[name] = value
	return out
}

// WithAll returns a copy with all entries of m set.
func (v Vars) WithAll(m map[string]string) Vars {
	out := v.clone()
	maps.Copy(out.values, m)
	return out
}

// WithFlag returns a copy with the named boolean flag set.
func (v Vars) WithFlag(name string, value bool) Vars {
	out := v.clone()
	out.flags[name] = value
	return out
}

// Get returns the named value and whether it is present.
func (v Vars) Get(name string) (string, bool) {
	s, ok := v.values[name]
	return s, ok
}

// Flag returns the named flag. A missing flag is false.
func (v Vars) Flag(name string) bool {
	return v.flags[name]
}

// Has reports whether the name is present as a value or a flag.
func (v Vars) Has(name string) bool {
	if _, ok := v.values[name]; ok {
		return true
	}
	_, ok := v.flags[name]
	return ok
}

// Names returns all value names. Used by tests and diagnostics.
func (v Vars) Names() []string {
	names := make([]string, 0, len(v.values))
	for name := range v.values {
		names = append(names, name)
	}
	return names
}

// truthy reports whether a name should keep a conditional block: a flag
// set to true, or a value that is non-empty.
func (v Vars) truthy(name string) bool {
	if b, ok := v.flags[name]; ok {
		return b
	}
	return v.values[name] != ""
}

func (v Vars) clone() Vars {
	out := Vars{
		values: make(map[string]string, len(v.values)+1),
		flags:  make(map[string]bool, len(v.flags)+1),
	}
	maps.Copy(out.values, v.values)
	maps.Copy(out.flags, v.flags)
	return out
}
