package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is one scripted run of an earbud.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Config is an optional CUE behaviour file. Relative paths resolve
	// against the scenario file's directory. Empty means the defaults.
	Config string `yaml:"config,omitempty"`

	// Initial is the device state before the first step.
	Initial InitialState `yaml:"initial,omitempty"`

	Collaborators Collaborators `yaml:"collaborators,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions are checked against the trace after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// path is where the scenario was loaded from.
	path string
}

// Path returns the file the scenario was loaded from, if any.
func (s *Scenario) Path() string { return s.path }

// InitialState seeds earbud.State.
type InitialState struct {
	Paired bool `yaml:"paired"`
}

// Collaborators configures the fake collaborators.
type Collaborators struct {
	Role              string   `yaml:"role,omitempty"`
	PairStatus        string   `yaml:"pair_status,omitempty"`
	AdvertisingStatus string   `yaml:"advertising_status,omitempty"`
	DisconnectStatus  string   `yaml:"disconnect_status,omitempty"`
	FailProfiles      []string `yaml:"fail_profiles,omitempty"`
	Hold              []string `yaml:"hold,omitempty"`
}

// Step is one operation. In YAML a step is a mapping with exactly one
// key, the operation, whose value holds the arguments.
type Step struct {
	Op   string
	Args map[string]any
	Line int
}

// Step operations.
const (
	OpStart             = "start"
	OpStop              = "stop"
	OpNotify            = "notify"
	OpAdvance           = "advance"
	OpRequestStandalone = "request_standalone"
	OpExpect            = "expect"
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: a step is a mapping with exactly one operation", node.Line)
	}
	s.Op = node.Content[0].Value
	s.Line = node.Line

	var body any
	if err := node.Content[1].Decode(&body); err != nil {
		return fmt.Errorf("line %d: %s: %w", node.Line, s.Op, err)
	}
	switch b := body.(type) {
	case nil:
		s.Args = map[string]any{}
	case map[string]any:
		s.Args = b
	default:
		return fmt.Errorf("line %d: %s: arguments must be a mapping", node.Line, s.Op)
	}
	return nil
}

// Assertion checks the final trace.
type Assertion struct {
	Type string `yaml:"type"`

	// Kind and Subject select records (trace_contains, trace_count).
	Kind    string `yaml:"kind,omitempty"`
	Subject string `yaml:"subject,omitempty"`

	// Detail must match exactly when set (trace_contains).
	Detail string `yaml:"detail,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Entries are record line prefixes in expected order (trace_order).
	Entries []string `yaml:"entries,omitempty"`

	// State is the expected final topology state (final_state).
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.path = path
	if s.Config != "" && !filepath.IsAbs(s.Config) {
		s.Config = filepath.Join(filepath.Dir(path), s.Config)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadDir loads every *.yaml and *.yml scenario in dir, sorted by file
// name.
func LoadDir(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios in %s", dir)
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := s.Collaborators.build(nil); err != nil {
		return fmt.Errorf("collaborators: %w", err)
	}

	for i, step := range s.Steps {
		if _, err := decodeStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Entries) == 0 {
			return fmt.Errorf("assertions[%d]: entries list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
