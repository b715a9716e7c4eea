package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"promo-bot/models"
	"promo-bot/services"
	"promo-bot/utils"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	badColor  = color.New(color.FgRed)
)

func statsCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show participants per stage and the code pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stats, err := env.ledger.Stats(ctx, time.Now())
			if err != nil {
				return err
			}
			counts, err := env.inventory.CountByStatus(ctx)
			if err != nil {
				return err
			}
			eligible, err := env.eligibility.Count(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printStats(out, env.cfg.Campaign, stats, counts, env.cfg.Monitoring.LowPromoThreshold)
			fmt.Fprintf(out, "Eligible emails: %d\n", eligible)
			return nil
		},
	}
}

func auditCmd(env *environment) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare claimed codes with completed registrations",
		Long: `Audit checks that every claimed promo code belongs to exactly one completed
participant. With --repair, codes claimed by nobody are returned to the pool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if repair {
				released, err := env.audit.Repair(ctx)
				if err != nil {
					return err
				}
				if len(released) == 0 {
					fmt.Fprintln(out, "Nothing to repair")
				} else {
					fmt.Fprintf(out, "%s %d code(s): %s\n", okColor.Sprint("Released"), len(released), strings.Join(released, ", "))
				}
			}
			report, err := env.audit.Run(ctx)
			if err != nil {
				return err
			}
			printAudit(out, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "return leaked codes to the pool before auditing")
	return cmd
}

func usersCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and reset participants",
	}

	var stage string
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List participants, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := models.Stage(stage)
			if st != "" && !st.Valid() {
				return fmt.Errorf("unknown stage %q", stage)
			}
			participants, err := env.ledger.List(cmd.Context(), st, limit, offset)
			if err != nil {
				return err
			}
			printParticipants(cmd.OutOrStdout(), participants)
			return nil
		},
	}
	list.Flags().StringVar(&stage, "stage", "", "awaiting_email, awaiting_inn, awaiting_confirmation or completed")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	list.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	reset := &cobra.Command{
		Use:   "reset <telegram-user-id>",
		Short: "Delete a participant so they can register again; a delivered code is retired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			p, err := env.ledger.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("Participant %d deleted", id)
			if code := p.PromoCodeValue(); code != "" {
				msg += fmt.Sprintf(", code %s retired (`promoadmin codes release %s` returns it to the pool)", code, code)
			}
			fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprint(msg))
			return nil
		},
	}

	cmd.AddCommand(list, reset)
	return cmd
}

func codesCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Inspect the promo code pool",
	}

	available := &cobra.Command{
		Use:   "available",
		Short: "List codes in claim order",
		RunE: func(cmd *cobra.Command, args []string) error {
			codes, err := env.inventory.ListAvailable(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range codes {
				fmt.Fprintf(out, "%5d  %s\n", c.Position, c.Code)
			}
			fmt.Fprintf(out, "%d code(s) available\n", len(codes))
			return nil
		},
	}

	release := &cobra.Command{
		Use:   "release <code>",
		Short: "Return a claimed or retired code that no participant holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := env.inventory.Release(ctx, args[0]); err != nil {
				return err
			}
			current, err := env.inventory.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !current.IsAvailable() {
				return fmt.Errorf("code %s is held by participant %d; use `promoadmin users reset` instead", current.Code, derefID(current.ClaimedBy))
			}
			fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprintf("Code %s is available", current.Code))
			return nil
		},
	}

	cmd.AddCommand(available, release)
	return cmd
}

func syncCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one Google Sheets sync now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			worker, err := env.syncWorker(ctx)
			if err != nil {
				return err
			}
			if err := worker.SyncOnce(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprint("Sheets synced"))
			return nil
		},
	}
}

func exportCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Upload a CSV of all participants to R2",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			exporter, err := env.exporter(ctx)
			if err != nil {
				return err
			}
			key, url, err := exporter.Export(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n%s\n", okColor.Sprint("Exported"), key, url)
			return nil
		},
	}
}

func printStats(w io.Writer, campaign string, stats *services.LedgerStats, counts services.InventoryCounts, lowThreshold int64) {
	fmt.Fprintf(w, "%s\n\n", campaign)
	fmt.Fprintf(w, "Participants: %d (today %d)\n", stats.Total, stats.StartedToday)
	for _, st := range []models.Stage{
		models.StageAwaitingEmail,
		models.StageAwaitingINN,
		models.StageAwaitingConfirmation,
		models.StageCompleted,
	} {
		fmt.Fprintf(w, "  %-22s %d\n", st, stats.ByStage[st])
	}
	fmt.Fprintf(w, "Completed today: %d\n", stats.CompletedToday)
	fmt.Fprintf(w, "Conversion: %.1f%%\n\n", stats.Conversion)

	avail := okColor.Sprint(counts.Available)
	switch {
	case counts.Available == 0:
		avail = badColor.Sprint("0 (pool exhausted)")
	case counts.Available < lowThreshold:
		avail = warnColor.Sprintf("%d (low)", counts.Available)
	}
	fmt.Fprintf(w, "Codes: %d total, %s available, %d claimed", counts.Total(), avail, counts.Claimed)
	if counts.Retired > 0 {
		fmt.Fprintf(w, ", %d retired", counts.Retired)
	}
	fmt.Fprintln(w)
}

func printAudit(w io.Writer, r *services.AuditReport) {
	balance := okColor.Sprint("balanced")
	if !r.Balanced {
		balance = badColor.Sprint("MISMATCH")
	}
	fmt.Fprintf(w, "Claimed codes: %d, completed participants: %d [%s]\n", r.ClaimedCodes, r.Completed, balance)

	for _, c := range r.Leaked {
		fmt.Fprintf(w, "  %s %s claimed by %d, no participant holds it\n", warnColor.Sprint("LEAKED"), c.Code, derefID(c.ClaimedBy))
	}
	for _, p := range r.Orphans {
		fmt.Fprintf(w, "  %s participant %d holds %s, which the pool does not show as claimed\n", badColor.Sprint("ORPHAN"), p.UserID, p.PromoCodeValue())
	}
	for _, inn := range r.DuplicateINNs {
		fmt.Fprintf(w, "  %s INN %s\n", badColor.Sprint("DUPLICATE"), utils.MaskINN(inn))
	}
	for _, code := range r.DuplicateCodes {
		fmt.Fprintf(w, "  %s code %s\n", badColor.Sprint("DUPLICATE"), code)
	}

	if r.Clean() {
		fmt.Fprintln(w, okColor.Sprint("No problems found"))
	} else if len(r.Leaked) > 0 {
		fmt.Fprintln(w, "Run `promoadmin audit --repair` to release leaked codes")
	}
}

func printParticipants(w io.Writer, participants []models.Participant) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tUSERNAME\tEMAIL\tINN\tSTAGE\tCODE\tCREATED")
	for _, p := range participants {
		username := "-"
		if p.TelegramUsername != nil {
			username = "@" + *p.TelegramUsername
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.UserID,
			username,
			orDash(utils.MaskEmail(p.EmailValue())),
			orDash(utils.MaskINN(p.INNValue())),
			p.Stage,
			orDash(p.PromoCodeValue()),
			p.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d participant(s)\n", len(participants))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
