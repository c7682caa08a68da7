package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	yaml "go.yaml.in/yaml/v3"
)

// loadYAMLConfig decodes the run file at path into out, rejecting unknown keys.
func loadYAMLConfig(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// flagOverride reports whether the named flag was given on the command line
// and so takes precedence over the run file.
func flagOverride(flags *pflag.FlagSet, name string) bool {
	f := flags.Lookup(name)
	return f != nil && f.Changed
}
