// Package ai implements the Hierarchical Task Network (HTN) planner that picks
// enemy and boss actions.
//
// HTN planning decomposes abstract tasks into primitive operators via ordered methods.
// Method preconditions are evaluated as Lua hooks; operators map to combat actions.
package ai

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Task is an abstract goal that can be decomposed by methods.
//
// Precondition: ID must be non-empty.
type Task struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
}

// Method decomposes a task into an ordered list of subtasks or operator IDs.
//
// Precondition: TaskID, ID, and Subtasks must be non-empty.
// Precondition: Precondition is a Lua function name; empty means always applicable.
type Method struct {
	TaskID       string   `yaml:"task"`
	ID           string   `yaml:"id"`
	Precondition string   `yaml:"precondition"` // Lua function name; empty = always applicable
	Subtasks     []string `yaml:"subtasks"`
}

// Operator actions.
const (
	OpAttack  = "attack"
	OpAbility = "ability"
	OpPass    = "pass"
)

// Operator is a primitive action that maps directly to a combat action.
//
// Precondition: ID and Action must be non-empty; Ability is required when
// Action is "ability".
type Operator struct {
	ID      string `yaml:"id"`
	Action  string `yaml:"action"`  // "attack", "ability", "pass"
	Ability string `yaml:"ability"` // ability id for "ability"
}

// Domain holds the full HTN domain loaded from a YAML file.
//
// Invariant: all Task, Method, and Operator IDs are unique within their slice.
type Domain struct {
	ID          string      `yaml:"id"`
	Description string      `yaml:"description"`
	Tasks       []*Task     `yaml:"tasks"`
	Methods     []*Method   `yaml:"methods"`
	Operators   []*Operator `yaml:"operators"`
}

// Validate checks the domain is plannable: it has an ID and a RootTask, every
// id is non-empty and unique within its kind, operator actions are known, and
// every method names a known task and only known subtasks.
//
// Postcondition: Returns nil, or one error listing every problem found.
func (d *Domain) Validate() error {
	if d.ID == "" {
		return errors.New("ai.Domain: ID must not be empty")
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	tasks := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		switch {
		case t.ID == "":
			bad("task has empty ID")
		case tasks[t.ID]:
			bad("duplicate task ID %q", t.ID)
		}
		tasks[t.ID] = true
	}
	if !tasks[RootTask] {
		bad("no %q task to plan from", RootTask)
	}

	ops := make(map[string]bool, len(d.Operators))
	for _, op := range d.Operators {
		switch {
		case op.ID == "" || op.Action == "":
			bad("operator missing ID or Action")
			continue
		case ops[op.ID]:
			bad("duplicate operator ID %q", op.ID)
		case tasks[op.ID]:
			bad("operator %q shadows a task", op.ID)
		}
		ops[op.ID] = true
		switch op.Action {
		case OpAttack, OpPass:
		case OpAbility:
			if op.Ability == "" {
				bad("operator %q: ability action needs an ability", op.ID)
			}
		default:
			bad("operator %q: unknown action %q", op.ID, op.Action)
		}
	}

	methods := make(map[string]bool, len(d.Methods))
	for _, m := range d.Methods {
		if m.TaskID == "" || m.ID == "" {
			bad("method missing TaskID or ID")
			continue
		}
		if methods[m.ID] {
			bad("duplicate method ID %q", m.ID)
		}
		methods[m.ID] = true
		if !tasks[m.TaskID] {
			bad("method %q: TaskID %q references unknown task", m.ID, m.TaskID)
		}
		if len(m.Subtasks) == 0 {
			bad("method %q: subtasks must not be empty", m.ID)
		}
		for _, sub := range m.Subtasks {
			if !tasks[sub] && !ops[sub] {
				bad("method %q: subtask %q is neither a task nor an operator", m.ID, sub)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("ai.Domain %q: %w", d.ID, errors.Join(errs...))
	}
	return nil
}

// OperatorByID returns the operator with the given ID, or false if not found.
func (d *Domain) OperatorByID(id string) (*Operator, bool) {
	for _, op := range d.Operators {
		if op.ID == id {
			return op, true
		}
	}
	return nil, false
}

// MethodsForTask returns all methods that decompose taskID, in declaration order.
func (d *Domain) MethodsForTask(taskID string) []*Method {
	var out []*Method
	for _, m := range d.Methods {
		if m.TaskID == taskID {
			out = append(out, m)
		}
	}
	return out
}

// yamlDomainFile wraps the YAML top-level key.
type yamlDomainFile struct {
	Domain *Domain `yaml:"domain"`
}

// LoadFS reads all *.yaml files under dir in fsys, in name order, and returns
// the parsed Domains.
//
// Postcondition: returns error if any YAML file fails to parse or validate.
// Postcondition: returns (nil, nil) if dir contains no .yaml files; callers should treat empty results as a configuration error if domains are required.
func LoadFS(fsys fs.FS, dir string) ([]*Domain, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("ai.LoadFS: reading %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var domains []*Domain
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("ai.LoadFS: reading %s: %w", name, err)
		}
		var f yamlDomainFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("ai.LoadFS: parsing %s: %w", name, err)
		}
		if f.Domain == nil {
			return nil, fmt.Errorf("ai.LoadFS: %s missing top-level 'domain' key", name)
		}
		if err := f.Domain.Validate(); err != nil {
			return nil, err
		}
		domains = append(domains, f.Domain)
	}
	return domains, nil
}

// LoadDirectory is LoadFS over an on-disk directory.
//
// Precondition: dir must be a readable directory.
func LoadDirectory(dir string) ([]*Domain, error) {
	return LoadFS(os.DirFS(dir), ".")
}
