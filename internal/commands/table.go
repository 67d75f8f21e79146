package commands

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// HandlerFunc runs one command invocation.
type HandlerFunc func(ctx context.Context, req *Request) error

// Command is one entry of the registration table.
type Command struct {
	Name string
	// Help is the i18n key of the one-line description shown by help.
	Help string
	Run  HandlerFunc
}

// Table maps command names to commands. It is built once and read-only
// afterwards, so lookups need no locking.
type Table struct {
	byName map[string]Command
	names  []string
}

// NewTable builds a table. Empty names, nil handlers and duplicate names
// are rejected.
func NewTable(cmds ...Command) (*Table, error) {
	t := &Table{byName: make(map[string]Command, len(cmds))}
	for _, cmd := range cmds {
		if cmd.Name == "" {
			return nil, errors.New("commands: empty command name")
		}
		if cmd.Run == nil {
			return nil, fmt.Errorf("commands: %s: nil handler", cmd.Name)
		}
		if _, dup := t.byName[cmd.Name]; dup {
			return nil, fmt.Errorf("commands: %s registered twice", cmd.Name)
		}
		t.byName[cmd.Name] = cmd
		t.names = append(t.names, cmd.Name)
	}
	slices.Sort(t.names)
	return t, nil
}

// Lookup returns the command registered under exactly name.
func (t *Table) Lookup(name string) (Command, bool) {
	cmd, ok := t.byName[name]
	return cmd, ok
}

// Commands returns every command ordered by name.
func (t *Table) Commands() []Command {
	out := make([]Command, 0, len(t.names))
	for _, name := range t.names {
		out = append(out, t.byName[name])
	}
	return out
}

// Len returns the number of registered commands.
func (t *Table) Len() int { return len(t.names) }
