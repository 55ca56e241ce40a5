// Command upictl is the operator CLI for the UPI reconciler. It runs against
// the same stores as the API, selected by the usual configuration.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-upi-reconciler/internal/bootstrap"
	"github.com/imrishuroy/go-upi-reconciler/internal/config"
	"github.com/imrishuroy/go-upi-reconciler/internal/logging"
)

var Version = "dev"

// openFunc builds a Runtime from the config file path.
type openFunc func(ctx context.Context, configPath string) (*bootstrap.Runtime, error)

func openRuntime(ctx context.Context, configPath string) (*bootstrap.Runtime, error) {
	cfg, err := config.LoadApp(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, true)
	return bootstrap.New(ctx, cfg, logger)
}

func newRootCmd(open openFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "upictl",
		Short:         "Operate UPI payment sessions and orders",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", os.Getenv("CONFIG_FILE"), "YAML config file")

	rootCmd.AddCommand(balanceCmd(open))
	rootCmd.AddCommand(statusCmd(open))
	rootCmd.AddCommand(doneCmd(open))
	rootCmd.AddCommand(cancelCmd(open))
	rootCmd.AddCommand(sweepCmd(open))
	rootCmd.AddCommand(orderCmd(open))
	rootCmd.AddCommand(repairCmd(open))
	rootCmd.AddCommand(nonceCmd(open))
	rootCmd.AddCommand(upiURICmd(open))
	rootCmd.AddCommand(auditCmd(open))

	return rootCmd
}

// withRuntime opens the runtime for one command and closes it afterwards.
func withRuntime(cmd *cobra.Command, open openFunc, fn func(ctx context.Context, rt *bootstrap.Runtime) error) error {
	configPath, _ := cmd.Flags().GetString("config")
	ctx := cmd.Context()
	rt, err := open(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func main() {
	if err := newRootCmd(openRuntime).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
