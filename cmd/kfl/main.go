// main.go bootstraps kfl: it builds the root Cobra command, binds environment
// overrides, and executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/example/kfl/internal/cliconfig"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

// rootFlags is shared by every subcommand; viper folds KFL_* environment
// variables into any flag the user did not set explicitly.
type rootFlags struct {
	configPath string
	server     string
	token      string
	namespace  string
	caFile     string
	insecure   bool
	logLevel   string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{logLevel: "info", configPath: cliconfig.DefaultPath()}
	cmd := &cobra.Command{
		Use:           "kfl",
		Short:         "Fluent Kubernetes API client",
		Long:          "kfl talks to the Kubernetes API directly: ad-hoc requests, durable watches, and in-container command execution.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", flags.configPath, "Path to the kfl configuration file")
	cmd.PersistentFlags().StringVar(&flags.server, "server", "", "Cluster API server base URL")
	cmd.PersistentFlags().StringVar(&flags.token, "token", "", "Bearer token for authentication")
	cmd.PersistentFlags().StringVarP(&flags.namespace, "namespace", "n", "", "Namespace scope for the request")
	cmd.PersistentFlags().StringVar(&flags.caFile, "ca-file", "", "Path to the cluster CA certificate bundle")
	cmd.PersistentFlags().BoolVar(&flags.insecure, "insecure-skip-tls-verify", false, "Skip server certificate verification")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", flags.logLevel, "Log level for kfl output (debug, info, warn, error)")

	cmd.AddCommand(
		newGetCommand(flags),
		newWatchCommand(flags),
		newExecCommand(flags),
		newApplyCommand(flags),
		newDeleteCommand(flags),
	)
	cmd.Example = `  # List pods in a namespace
  kfl get Pod -n prod

  # Follow changes to deployments, surviving reconnects
  kfl watch Deployment --api-version apps/v1 -n prod

  # Run a command inside a container
  kfl exec checkout-6f7b -n prod -c app -- sh -c 'echo hi'`
	bindViper(cmd)
	return cmd
}

func bindViper(root *cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("KFL")
	v.AutomaticEnv()

	cobra.OnInitialize(func() {
		commands := append([]*cobra.Command{root}, root.Commands()...)
		for _, cmd := range commands {
			for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
				if err := v.BindPFlags(fs); err != nil {
					cobra.CheckErr(err)
				}
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed || !v.IsSet(f.Name) {
						return
					}
					if val := fmt.Sprintf("%v", v.Get(f.Name)); val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
	})
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = fmt.Sprintf("%s\nHint: increase --timeout or verify network connectivity to the cluster.", err)
	case apierrors.IsUnauthorized(err):
		message = fmt.Sprintf("%s\nHint: the bearer token was rejected. Check --token or the token in your kfl config.", err)
	case apierrors.IsForbidden(err):
		message = fmt.Sprintf("%s\nHint: missing Kubernetes permissions for this verb and resource.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}
