package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"
)

// enumValue is a string flag restricted to a fixed set of values.
type enumValue struct {
	value   *string
	allowed []string
}

var _ pflag.Value = (*enumValue)(nil)

func newEnumValue(def string, p *string, allowed ...string) *enumValue {
	*p = def
	return &enumValue{value: p, allowed: allowed}
}

func (e *enumValue) String() string { return *e.value }

func (e *enumValue) Set(s string) error {
	s = strings.ToLower(s)
	if !slices.Contains(e.allowed, s) {
		return fmt.Errorf("must be one of %s", strings.Join(e.allowed, ", "))
	}
	*e.value = s
	return nil
}

func (e *enumValue) Type() string { return "string" }

// enumFlag registers an enum flag on fs.
func enumFlag(fs *pflag.FlagSet, p *string, name, def, usage string, allowed ...string) {
	fs.Var(newEnumValue(def, p, allowed...), name, fmt.Sprintf("%s (%s)", usage, strings.Join(allowed, ", ")))
}
