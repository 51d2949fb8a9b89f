package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Messages lists every wire message by schema file stem.
var Messages = map[string]any{
	"hello":   HelloMsg{},
	"welcome": WelcomeMsg{},
	"state":   StateMsg{},
	"act":     ActMsg{},
	"ack":     AckMsg{},
	"frame":   FrameMsg{},
	"end":     EndMsg{},
}

// Schema reflects the JSON schema of one message.
func Schema(name string) (*jsonschema.Schema, error) {
	v, ok := Messages[name]
	if !ok {
		return nil, fmt.Errorf("unknown message %q", name)
	}
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(v)
	s.Title = name
	s.Description = "cheeserun protocol " + Version
	return s, nil
}

// SchemaJSON returns the indented schema document of one message.
func SchemaJSON(name string) ([]byte, error) {
	s, err := Schema(name)
	if err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", name, err)
	}
	return append(b, '\n'), nil
}
