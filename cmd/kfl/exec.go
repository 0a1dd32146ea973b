// exec.go runs a command inside a pod container over the SPDY channel.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/example/kfl/pkg/exec"
)

func newExecCommand(flags *rootFlags) *cobra.Command {
	var container, commandStr string
	var stdin, tty bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "exec POD [-- COMMAND ...]",
		Short: "Run a command inside a container",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := args[1:]
			if commandStr != "" {
				if len(command) > 0 {
					return fmt.Errorf("pass the command either after -- or via --command, not both")
				}
				parsed, err := shellwords.Parse(commandStr)
				if err != nil {
					return fmt.Errorf("parse --command: %w", err)
				}
				command = parsed
			}
			if len(command) == 0 {
				return fmt.Errorf("no command given; append it after -- or use --command")
			}

			c, log, err := buildClient(flags)
			if err != nil {
				return err
			}
			req := c.Request().Version("v1").Resource("pods").Namespace(flags.namespace).Name(args[0])
			exec.Command(req, container, command...)
			ex, err := exec.New(req, exec.WithLogger(log.WithName("exec")))
			if err != nil {
				return err
			}

			opts := exec.StreamOptions{Stdout: os.Stdout, Stderr: os.Stderr, TTY: tty, Timeout: timeout}
			if stdin {
				opts.Stdin = os.Stdin
				if term.IsTerminal(int(os.Stdin.Fd())) {
					fmt.Fprintln(os.Stderr, "reading stdin from terminal; press Ctrl-D to finish input")
				}
			}
			_, err = ex.Run(cmd.Context(), opts)
			var cmdErr *exec.CommandError
			if errors.As(err, &cmdErr) {
				fmt.Fprintln(os.Stderr, cmdErr.Error())
				if cmdErr.Result.ExitCode >= 0 {
					os.Exit(cmdErr.Result.ExitCode)
				}
				os.Exit(1)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&container, "container", "c", "", "Container to exec into (defaults to the first container)")
	cmd.Flags().StringVar(&commandStr, "command", "", "Command line to run, parsed shell-style")
	cmd.Flags().BoolVarP(&stdin, "stdin", "i", false, "Attach standard input to the command")
	cmd.Flags().BoolVarP(&tty, "tty", "t", false, "Request a TTY for the command")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the session after this duration")
	return cmd
}
