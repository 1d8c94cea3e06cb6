package pipeline

import (
	"fmt"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
)

// #region command
// CommandKind names a control operation applied on the detection loop.
type CommandKind string

const (
	CommandReset       CommandKind = "reset"
	CommandSetMode     CommandKind = "set_mode"
	CommandTestTrigger CommandKind = "test_trigger"
)

// Command is a control request from another goroutine. Commands are applied
// between samples, never concurrently with one.
type Command struct {
	Kind     CommandKind
	Mode     profile.Mode     // CommandSetMode only
	Location *motion.Location // CommandTestTrigger only; falls back to the runner location
}

// Validate rejects commands the loop cannot apply.
func (c Command) Validate() error {
	switch c.Kind {
	case CommandReset, CommandTestTrigger:
		return nil
	case CommandSetMode:
		if _, err := profile.ParseMode(string(c.Mode)); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", c.Kind)
	}
}

type commandRequest struct {
	cmd   Command
	reply chan error
}

// #endregion command
