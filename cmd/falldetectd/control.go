package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/logging"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/pipeline"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
)

var errEmptyCommand = errors.New("empty command")

// parseCommand reads one control line: "reset", "mode <name>" or "test".
func parseCommand(line string) (pipeline.Command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return pipeline.Command{}, errEmptyCommand
	}
	switch fields[0] {
	case "reset":
		return pipeline.Command{Kind: pipeline.CommandReset}, nil
	case "test", "test-event":
		return pipeline.Command{Kind: pipeline.CommandTestTrigger}, nil
	case "mode":
		if len(fields) != 2 {
			return pipeline.Command{}, fmt.Errorf("usage: mode <conservative|balanced|sensitive>")
		}
		return pipeline.Command{Kind: pipeline.CommandSetMode, Mode: profile.Mode(fields[1])}, nil
	default:
		return pipeline.Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}

// controlLoop submits one command per line of r until r ends or the runner stops.
func controlLoop(ctx context.Context, r io.Reader, runner *pipeline.Runner, log logging.Logger) {
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		cmd, err := parseCommand(scan.Text())
		if errors.Is(err, errEmptyCommand) {
			continue
		}
		if err != nil {
			log.Warn(ctx, "ignoring control command", logging.String("line", scan.Text()), logging.Err(err))
			continue
		}
		if err := runner.Submit(ctx, cmd); err != nil {
			if errors.Is(err, pipeline.ErrNotRunning) || ctx.Err() != nil {
				return
			}
			log.Warn(ctx, "control command failed", logging.String("command", string(cmd.Kind)), logging.Err(err))
			continue
		}
		log.Info(ctx, "control command applied", logging.String("command", string(cmd.Kind)))
	}
}
