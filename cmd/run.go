package cmd

import (
	"time"

	"github.com/tetherproc/tether/app"
	"github.com/tetherproc/tether/config"
	"github.com/tetherproc/tether/internal/session"
	"github.com/tetherproc/tether/internal/shell"
	"github.com/tetherproc/tether/util/conf"
	"github.com/urfave/cli/v2"
)

var (
	runCmdDescription = `The run command spawns the given executable with its stdin and
stdout redirected to tether, optionally pins it to a set of
CPUs, writes each --send line to it and reads its output until
a line starting with the terminator prefix arrives, or the
read timeout elapses. Without a terminator, tether waits for
the child to exit.

The child is force-terminated on every exit path, including
interrupts.
	`
	runCmd = &cli.Command{
		Name:        "run",
		Usage:       "Spawn a child process and exchange lines with it.",
		Description: runCmdDescription,
		Action:      runAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "command",
				Usage:    "the command to spawn.",
				Aliases:  []string{"c"},
				Category: "child",
				EnvVars:  []string{"TETHER_PROC__CMD"},
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "arg",
				Usage:    "additional arguments to pass to the child process.",
				Aliases:  []string{"a"},
				Category: "child",
				EnvVars:  []string{"TETHER_PROC__ARGS"},
			},
			&cli.StringFlag{
				Name:     "log-name",
				Usage:    "name under which the child's I/O is logged.",
				Category: "child",
				EnvVars:  []string{"TETHER_PROC__LOG_NAME"},
			},
			&cli.PathFlag{
				Name:     "cwd",
				Usage:    "working directory for the child process.",
				Category: "child",
				EnvVars:  []string{"TETHER_PROC__CWD"},
			},
			&cli.IntSliceFlag{
				Name:     "cpu",
				Usage:    "logical CPUs to pin the child process to.",
				Category: "session",
				EnvVars:  []string{"TETHER_SESSION__CPUS"},
			},
			&cli.StringSliceFlag{
				Name:     "send",
				Usage:    "lines to write to the child, in order.",
				Aliases:  []string{"s"},
				Category: "session",
				EnvVars:  []string{"TETHER_SESSION__SEND"},
			},
			&cli.StringFlag{
				Name:     "terminator",
				Usage:    "prefix of the line that completes a response.",
				Aliases:  []string{"t"},
				Category: "session",
				EnvVars:  []string{"TETHER_SESSION__TERMINATOR"},
			},
			&cli.DurationFlag{
				Name:     "timeout",
				Usage:    "read deadline per response. Zero waits indefinitely.",
				Value:    time.Duration(0),
				Category: "session",
				EnvVars:  []string{"TETHER_SESSION__TIMEOUT"},
			},
		},
	}

	// runCliMap maps run flags onto config keys.
	runCliMap = map[string]string{
		"command":    "proc.cmd",
		"arg":        "proc.args",
		"log-name":   "proc.log_name",
		"cwd":        "proc.cwd",
		"cpu":        "session.cpus",
		"send":       "session.send",
		"terminator": "session.terminator",
		"timeout":    "session.timeout",
	}
)

func runAction(ctx *cli.Context) error {
	// re-parse the config with the run command's flags layered on top
	cfg, err := conf.Parse[config.Config](conf.ParseOptions{
		Cli:       ctx,
		CliMap:    runCliMap,
		Defaults:  config.DefaultConfig,
		EnvPrefix: "TETHER_",
	})
	if err != nil {
		return err
	}

	ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

	runApp, err := app.New(ctx)
	if err != nil {
		return err
	}

	err = runApp.Run(ctx.Context, session.Module(cfg.Session))

	if code := shell.ExitCodeOf(err); code != 0 {
		return cli.Exit("", code)
	}

	return nil
}

func init() {
	rootApp.Commands = append(rootApp.Commands, runCmd)
}
