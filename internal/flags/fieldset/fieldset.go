// Package fieldset provides a repeatable pflag value for selecting
// provenance metadata fields. Tokens are validated against a closed set at
// parse time; resolution of the aliases "all" and "none" happens later in
// the transfer engine.
package fieldset

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

const Type = "fields"

// Flag accumulates field tokens from repeated flag usages or a single
// comma-separated value.
type Flag struct {
	tokens  []string
	allowed map[string]struct{}
	changed bool
}

func (f *Flag) String() string {
	return strings.Join(f.tokens, ",")
}

func (f *Flag) Set(s string) error {
	parts := strings.Split(s, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := f.allowed[p]; !ok {
			return fmt.Errorf("unknown metadata field %q", p)
		}
		if !f.changed {
			// first explicit use discards the default
			f.tokens = nil
			f.changed = true
		}
		f.tokens = append(f.tokens, p)
	}
	return nil
}

func (f *Flag) Type() string {
	return Type
}

// Tokens returns the accumulated field tokens, default included if the
// flag was never set.
func (f *Flag) Tokens() []string {
	return f.tokens
}

// Var registers a fieldset flag. value is the default token list, allowed
// the closed token set (aliases included).
func Var(f *pflag.FlagSet, name string, value, allowed []string, usage string) *Flag {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	flag := &Flag{tokens: value, allowed: set}
	f.Var(flag, name, fmt.Sprintf("%s (one or more of [%s])", usage, strings.Join(allowed, ", ")))
	return flag
}

// Get returns the tokens of the named fieldset flag.
func Get(f *pflag.FlagSet, name string) ([]string, error) {
	flag := f.Lookup(name)
	if flag == nil {
		return nil, fmt.Errorf("flag %q not found", name)
	}
	ff, ok := flag.Value.(*Flag)
	if !ok {
		return nil, fmt.Errorf("flag %q is not a fieldset flag", name)
	}
	return ff.Tokens(), nil
}
