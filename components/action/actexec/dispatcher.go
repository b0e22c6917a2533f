package actexec

import (
	"fmt"
	"sync"

	"github.com/google/shlex"
	"github.com/google/uuid"

	"github.com/open-control-systems/card-detector/components/core"
)

// EventType is a kind of the card event passed to the action.
type EventType string

const (
	// EventInsert is fired when a card is inserted.
	EventInsert EventType = "insert"

	// EventRemove is fired when a card is removed.
	EventRemove EventType = "remove"
)

const (
	envEvent   = "CARD_EVENT"
	envReader  = "CARD_READER"
	envEventID = "CARD_EVENT_ID"
)

// Command is an external command with its arguments.
type Command struct {
	// Command - executable path or name, empty to do nothing.
	Command string

	// Args - arguments, split with the shell rules.
	Args string
}

// Commands is a set of actions for the card events.
type Commands struct {
	Insert Command
	Remove Command
}

// Dispatcher launches the configured command for each card event.
//
// Remarks:
//   - Launch failures are logged and never returned to the caller.
//   - Doesn't wait for the launched process.
type Dispatcher struct {
	runner Runner

	mu       sync.RWMutex
	commands Commands
}

// NewDispatcher is an initialization of Dispatcher.
func NewDispatcher(runner Runner, commands Commands) *Dispatcher {
	return &Dispatcher{
		runner:   runner,
		commands: commands,
	}
}

// SetCommands replaces the configured commands.
func (d *Dispatcher) SetCommands(commands Commands) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.commands = commands
}

// FireInsert launches the insert action for the reader.
func (d *Dispatcher) FireInsert(reader string) {
	d.mu.RLock()
	command := d.commands.Insert
	d.mu.RUnlock()

	d.fire(EventInsert, reader, command)
}

// FireRemoved launches the remove action for the reader.
func (d *Dispatcher) FireRemoved(reader string) {
	d.mu.RLock()
	command := d.commands.Remove
	d.mu.RUnlock()

	d.fire(EventRemove, reader, command)
}

func (d *Dispatcher) fire(event EventType, reader string, command Command) {
	if command.Command == "" {
		core.LogDbg.Printf("action-dispatcher: no action configured: event=%s reader=%s\n",
			event, reader)

		return
	}

	id := uuid.NewString()

	if err := d.launch(event, reader, id, command); err != nil {
		core.LogErr.Printf("action-dispatcher: failed to launch: event=%s reader=%s id=%s err=%v\n",
			event, reader, id, err)

		return
	}

	core.LogInf.Printf("action-dispatcher: launched: event=%s reader=%s id=%s command=%s\n",
		event, reader, id, command.Command)
}

func (d *Dispatcher) launch(event EventType, reader string, id string, command Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runner panicked: %v", r)
		}
	}()

	args, err := shlex.Split(command.Args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	env := []string{
		envEvent + "=" + string(event),
		envReader + "=" + reader,
		envEventID + "=" + id,
	}

	return d.runner.Run(command.Command, args, env)
}
