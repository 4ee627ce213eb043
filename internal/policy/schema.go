package policy

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateArgs checks the call arguments against the policy's JSON Schema.
// A nil schema accepts anything. The returned error text is safe to surface
// back to the agent loop as a denial reason.
func (p *ToolPolicy) ValidateArgs(argsJSON string) error {
	if p.ArgumentSchema == nil {
		return nil
	}

	schemaBytes, err := json.Marshal(p.ArgumentSchema)
	if err != nil {
		return fmt.Errorf("invalid argument schema: %w", err)
	}
	var schemaObj any
	if err := json.Unmarshal(schemaBytes, &schemaObj); err != nil {
		return fmt.Errorf("schema unmarshal error: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaObj); err != nil {
		return fmt.Errorf("schema compile error: %w", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("schema compile error: %w", err)
	}

	var args any
	if argsJSON == "" {
		argsJSON = "{}"
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}

	if err := sch.Validate(args); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
