package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/eca/internal/compiler"
)

// Scenario defines one harness run.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Models lists model files to load. Relative paths are resolved
	// against the scenario file's directory by LoadScenario.
	Models []string `yaml:"models,omitempty"`

	// Inline holds models defined in the scenario itself.
	Inline []compiler.RawModel `yaml:"inline,omitempty"`

	// MaxNodeVisits overrides the engine's node-visit ceiling.
	MaxNodeVisits int `yaml:"max_node_visits,omitempty"`

	// Ambient entries are added to every host-triggered token context.
	Ambient map[string]any `yaml:"ambient,omitempty"`

	// Steps are dispatched in order against the same engine.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step fires one host event.
type Step struct {
	Fire    string         `yaml:"fire"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// Expect, when present, must match the step's reports one to one, in
	// order. Only the fields given are compared.
	Expect []ExpectReport `yaml:"expect,omitempty"`
}

// ExpectReport is a partial invocation report.
type ExpectReport struct {
	Model   string `yaml:"model"`
	Node    string `yaml:"node,omitempty"`
	State   string `yaml:"state,omitempty"`
	Reason  string `yaml:"reason,omitempty"`
	Visited *int   `yaml:"visited,omitempty"`
	Depth   *int   `yaml:"depth,omitempty"`
}

// Assertion validates the whole trace.
type Assertion struct {
	Type     string   `yaml:"type"`
	Model    string   `yaml:"model,omitempty"`
	State    string   `yaml:"state,omitempty"`
	Count    int      `yaml:"count,omitempty"`
	Models   []string `yaml:"models,omitempty"`
	Messages []string `yaml:"messages,omitempty"`
	Text     string   `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertReportCount     = "report_count"
	AssertReportState     = "report_state"
	AssertReportOrder     = "report_order"
	AssertMessages        = "messages"
	AssertMessageContains = "message_contains"
)

// LoadScenario reads and parses a scenario YAML file, resolving model
// paths against the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. Relative model paths are joined to
// basePath when it is not empty.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, p := range scenario.Models {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Models[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Models) == 0 && len(s.Inline) == 0 {
		return fmt.Errorf("models or inline is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.MaxNodeVisits < 0 {
		return fmt.Errorf("max_node_visits must be positive")
	}

	for _, p := range s.Models {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("model file not found: %s", p)
		}
	}

	for i, step := range s.Steps {
		if step.Fire == "" {
			return fmt.Errorf("steps[%d]: fire is required", i)
		}
		for j, e := range step.Expect {
			if e.Model == "" {
				return fmt.Errorf("steps[%d].expect[%d]: model is required", i, j)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertReportCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for report_count", index)
		}
	case AssertReportState:
		if a.Model == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: model and state are required for report_state", index)
		}
	case AssertReportOrder:
		if len(a.Models) == 0 {
			return fmt.Errorf("assertions[%d]: models list is required for report_order", index)
		}
	case AssertMessages:
		if a.Messages == nil {
			return fmt.Errorf("assertions[%d]: messages is required for messages (use [] for none)", index)
		}
	case AssertMessageContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for message_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
