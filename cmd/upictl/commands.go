package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-upi-reconciler/internal/bootstrap"
	"github.com/imrishuroy/go-upi-reconciler/internal/money"
	"github.com/imrishuroy/go-upi-reconciler/internal/nonces"
)

// errNoAuditListing is returned by audit when the logs live in DynamoDB,
// which is write-only from this tool.
var errNoAuditListing = errors.New("audit listing needs the local store (run_local)")

func balanceCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Read the current wallet balance from the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *bootstrap.Runtime) error {
				bal, err := rt.Engine.CurrentBalance(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "balance: %s\n", money.String(bal))
				return nil
			})
		},
	}
}

func statusCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status [orderId]",
		Short: "Run a status check for the latest session of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *bootstrap.Runtime) error {
				status, err := rt.Engine.CheckStatus(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status)
				return nil
			})
		},
	}
}

func doneCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "done [orderId]",
		Short: "Run the buyer's \"I have paid\" check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *bootstrap.Runtime) error {
				res, err := rt.Engine.MarkDone(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %s\n", args[0], res.Status)
				if res.Diff != nil && res.Expected != nil {
					fmt.Fprintf(out, "  diff:     %s\n", money.String(*res.Diff))
					fmt.Fprintf(out, "  expected: %s\n", money.String(*res.Expected))
				}
				return nil
			})
		},
	}
}

func cancelCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [orderId]",
		Short: "Cancel the latest session of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *bootstrap.Runtime) error {
				status, err := rt.Engine.Cancel(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status)
				return nil
			})
		},
	}
}

func sweepCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire every pending session past its expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *bootstrap.Runtime) error {
				n, err := rt.Engine.SweepExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d session(s)\n", n)
				return nil
			})
		},
	}
}

func orderCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "order [orderId]",
		Short: "Print a materialized order as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *bootstrap.Runtime) error {
				o, err := rt.Engine.GetOrder(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), o)
			})
		},
	}
}

func repairCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "repair [orderId]",
		Short: "Create the missing order of a completed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *bootstrap.Runtime) error {
				created, err := rt.Engine.RepairOrder(ctx, args[0])
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: order created\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: order already exists\n", args[0])
				}
				return nil
			})
		},
	}
}

func nonceCmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nonce",
		Short: "Issue a session nonce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ip, _ := cmd.Flags().GetString("ip")
			return withRuntime(cmd, open, func(ctx context.Context, rt *bootstrap.Runtime) error {
				nonce, err := rt.Guard.Issue(ctx, nonces.ClientContext{IP: ip, UserAgent: "upictl/" + Version})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), nonce)
				return nil
			})
		},
	}
	cmd.Flags().String("ip", "127.0.0.1", "Client IP recorded on the nonce")
	return cmd
}

func upiURICmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upi-uri",
		Short: "Build the UPI intent URI for an amount",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, _ := cmd.Flags().GetFloat64("amount")
			note, _ := cmd.Flags().GetString("note")
			return withRuntime(cmd, open, func(ctx context.Context, rt *bootstrap.Runtime) error {
				uri, err := rt.Payee.IntentURI(amount, note)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), uri)
				return nil
			})
		},
	}
	cmd.Flags().Float64P("amount", "a", 0, "Amount in INR")
	cmd.Flags().StringP("note", "n", "", "Transaction note")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func auditCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "audit [orderId]",
		Short: "Print audit entries, oldest first (local store only)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID := ""
			if len(args) == 1 {
				orderID = args[0]
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if rt.Local == nil {
					return errNoAuditListing
				}
				entries, err := rt.Local.AuditLog().Entries(orderID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					line, err := json.Marshal(e)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(line))
				}
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
