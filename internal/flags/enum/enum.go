// Package enum provides a pflag value type restricted to a closed set of
// string values. The first value in the set is the default.
package enum

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const Type = "enum"

// Flag is a pflag.Value that only accepts one of a fixed set of strings.
type Flag struct {
	value   string
	allowed []string
}

func (f *Flag) String() string {
	return f.value
}

func (f *Flag) Set(s string) error {
	for _, v := range f.allowed {
		if s == v {
			f.value = s
			return nil
		}
	}
	return fmt.Errorf("invalid value %q, must be one of [%s]", s, strings.Join(f.allowed, ", "))
}

func (f *Flag) Type() string {
	return Type
}

// Var registers an enum flag with the given name on the flag set.
// values must be non-empty; values[0] becomes the default.
func Var(f *pflag.FlagSet, name string, values []string, usage string) {
	VarP(f, name, "", values, usage)
}

// VarP is like Var but additionally accepts a shorthand letter.
func VarP(f *pflag.FlagSet, name, shorthand string, values []string, usage string) {
	if len(values) == 0 {
		panic(fmt.Sprintf("enum flag %q registered without values", name))
	}
	flag := &Flag{value: values[0], allowed: values}
	f.VarP(flag, name, shorthand, fmt.Sprintf("%s (must be one of [%s])", usage, strings.Join(values, ", ")))
}

// Get returns the current value of the named enum flag.
func Get(f *pflag.FlagSet, name string) (string, error) {
	flag := f.Lookup(name)
	if flag == nil {
		return "", fmt.Errorf("flag %q not found", name)
	}
	ef, ok := flag.Value.(*Flag)
	if !ok {
		return "", fmt.Errorf("flag %q is not an enum flag", name)
	}
	return ef.value, nil
}

// RegisterCompletion wires shell completion for the named enum flag.
func RegisterCompletion(cmd *cobra.Command, name string) error {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		return fmt.Errorf("flag %q not found", name)
	}
	ef, ok := flag.Value.(*Flag)
	if !ok {
		return fmt.Errorf("flag %q is not an enum flag", name)
	}
	return cmd.RegisterFlagCompletionFunc(name, func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return ef.allowed, cobra.ShellCompDirectiveNoFileComp
	})
}
