package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"raffle/internal/models"
	"raffle/internal/services"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
)

// runWithServices opens the engine for a one-shot command and tags the
// context with the configured actor.
func runWithServices(cmd *cobra.Command, fn func(ctx context.Context, svc *services.Services) error) error {
	cfg := mustConfig(cmd)
	defer commonRun(cfg, false).Close()

	svc, store, err := openServices(cfg, nil)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(services.WithActor(cmd.Context(), cfg.Actor), svc)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func raffleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raffle",
		Short: "Create and inspect raffles",
	}

	var (
		title   string
		tickets int
		endsIn  time.Duration
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Open a new raffle for ticket sales",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services.Services) error {
				r, err := svc.Raffles.CreateRaffle(ctx, title, tickets, time.Now().Add(endsIn))
				if err != nil {
					return err
				}
				return printJSON(r)
			})
		},
	}
	create.Flags().StringVar(&title, "title", "", "raffle title")
	create.Flags().IntVar(&tickets, "tickets", 0, "number of tickets on sale")
	create.Flags().DurationVar(&endsIn, "ends-in", 7*24*time.Hour, "time until sales close")
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("tickets")

	get := &cobra.Command{
		Use:   "get RAFFLE_ID",
		Short: "Show a raffle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services.Services) error {
				r, err := svc.Raffles.GetRaffle(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(r)
			})
		},
	}

	cmd.AddCommand(create, get)
	return cmd
}

func ticketsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "Sell tickets",
	}

	var (
		user     string
		quantity int
	)
	buy := &cobra.Command{
		Use:   "buy RAFFLE_ID",
		Short: "Reserve tickets for a user; payment stays pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services.Services) error {
				e, err := svc.Raffles.PurchaseTickets(ctx, args[0], user, quantity)
				if err != nil {
					return err
				}
				return printJSON(e)
			})
		},
	}
	buy.Flags().StringVar(&user, "user", "", "buyer user ID")
	buy.Flags().IntVar(&quantity, "quantity", 1, "number of tickets")
	_ = buy.MarkFlagRequired("user")

	cmd.AddCommand(buy)
	return cmd
}

func paymentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Record payment results",
	}

	var status string
	confirm := &cobra.Command{
		Use:   "confirm ENTRY_ID",
		Short: "Settle an entry's payment as completed or failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services.Services) error {
				e, err := svc.Raffles.ConfirmPayment(ctx, args[0], models.PaymentStatus(status))
				if err != nil {
					return err
				}
				return printJSON(e)
			})
		},
	}
	confirm.Flags().StringVar(&status, "status", string(models.PaymentCompleted), "completed or failed")

	cmd.AddCommand(confirm)
	return cmd
}

func commitCommand() *cobra.Command {
	var drawIn time.Duration
	cmd := &cobra.Command{
		Use:   "commit RAFFLE_ID",
		Short: "Publish a seed commitment for a scheduled draw",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services.Services) error {
				c, err := svc.Commitments.PublishSeedCommitment(ctx, args[0], time.Now().Add(drawIn))
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().DurationVar(&drawIn, "draw-in", 24*time.Hour, "time until the scheduled draw")
	return cmd
}

func drawCommand() *cobra.Command {
	var opts services.DrawOptions
	cmd := &cobra.Command{
		Use:   "draw RAFFLE_ID",
		Short: "Draw the winner and end the raffle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services.Services) error {
				res, err := svc.Draws.DrawWinner(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&opts.WitnessEmail, "witness-email", "", "witness attesting the draw")
	cmd.Flags().StringVar(&opts.VideoRecording, "video", "", "link to the draw recording")
	cmd.Flags().StringVar(&opts.BlockchainHash, "blockchain-hash", "", "external anchor for the draw")
	return cmd
}

var errNotVerified = errors.New("draw did not verify")

func verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify RAFFLE_ID AUDIT_ID",
		Short: "Replay a recorded draw from its revealed seed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services.Services) error {
				res, err := svc.Verifier.Verify(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if err := printJSON(res); err != nil {
					return err
				}
				if !res.Verified {
					return errNotVerified
				}
				return nil
			})
		},
	}
}

func reportCommand() *cobra.Command {
	var asCSV bool
	cmd := &cobra.Command{
		Use:   "report RAFFLE_ID",
		Short: "Print the compliance report of a raffle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services.Services) error {
				report, err := svc.Reports.GenerateComplianceReport(ctx, args[0])
				if err != nil {
					return err
				}
				if asCSV {
					return gocsv.Marshal(&report.Audits, os.Stdout)
				}
				return printJSON(report)
			})
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "print the audit rows as CSV")
	return cmd
}

func keygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a seed sealing key",
		Long:  "Prints a fresh hex key for seedSealingKey (RAFFLE_SEED_SEALING_KEY).",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(services.NewSealingKey())
		},
	}
}
