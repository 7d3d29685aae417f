// Package schema validates the JSON dumps produced by the external build
// tools before they are fixed.
package schema

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	//go:embed compile_commands.schema.json
	compileCommandsJSON []byte
	//go:embed gn_targets.schema.json
	gnTargetsJSON []byte
)

var (
	compileCommandsSchema *jsonschema.Schema
	gnTargetsSchema       *jsonschema.Schema
)

func init() {
	compileCommandsSchema = mustCompile("compile_commands.schema.json", compileCommandsJSON)
	gnTargetsSchema = mustCompile("gn_targets.schema.json", gnTargetsJSON)
}

func mustCompile(name string, data []byte) *jsonschema.Schema {
	js, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	if err := compiler.AddResource(name, js); err != nil {
		panic(err)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		panic(err)
	}
	return s
}

// ValidateCompileCommands checks a compilation database dump.
func ValidateCompileCommands(data []byte) error {
	return validate(compileCommandsSchema, "compile commands", data)
}

// ValidateGnTargets checks a "gn desc --format=json" dump.
func ValidateGnTargets(data []byte) error {
	return validate(gnTargetsSchema, "gn targets", data)
}

func validate(s *jsonschema.Schema, what string, data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", what, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("invalid %s: %w", what, err)
	}
	return nil
}
