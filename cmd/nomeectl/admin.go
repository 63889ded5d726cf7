package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/config"
	"github.com/stephdmurray-sys/nomee-sub001/internal/moderation"
	"github.com/stephdmurray-sys/nomee-sub001/internal/plans"
	"github.com/stephdmurray-sys/nomee-sub001/internal/ratelimit"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store/migrations"
)

var (
	profileSlug string
	profileName string
	profilePlan string

	reportStatus string
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)

	profileCreateCmd.Flags().StringVar(&profileSlug, "slug", "", "public profile slug (required)")
	profileCreateCmd.Flags().StringVar(&profileName, "name", "", "display name (required)")
	profileCreateCmd.Flags().StringVar(&profilePlan, "plan", string(plans.Free), "plan: free, starter or premier")
	_ = profileCreateCmd.MarkFlagRequired("slug")
	_ = profileCreateCmd.MarkFlagRequired("name")
	profileCmd.AddCommand(profileCreateCmd, profileSetPlanCmd)

	reportsListCmd.Flags().StringVar(&reportStatus, "status", string(store.ReportPending), "filter by status (empty for all)")
	reportsCmd.AddCommand(reportsListCmd, reportsReviewCmd)

	rootCmd.AddCommand(migrateCmd, profileCmd, reportsCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Opening the store applies pending migrations.
		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		return printMigrationStatus(cmd, st.DB())
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version without applying migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Database.Type != "sqlite" {
			return fmt.Errorf("migrate status needs a sqlite database, got %q", cfg.Database.Type)
		}
		db, err := sql.Open("sqlite3", "file:"+cfg.Database.Path+"?_foreign_keys=on")
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		return printMigrationStatus(cmd, db)
	},
}

func printMigrationStatus(cmd *cobra.Command, db *sql.DB) error {
	st, err := migrations.Check(db)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Schema version: %d (latest %d)\n", st.Current, st.Latest)
	switch {
	case st.Dirty:
		fmt.Fprintln(out, "State: dirty, a previous migration failed")
	case st.Pending():
		fmt.Fprintln(out, "State: migrations pending")
	default:
		fmt.Fprintln(out, "State: up to date")
	}
	return nil
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a profile",
	Long: `Create a profile owner record.

Examples:
  nomeectl profile create --slug ana-lopez --name "Ana Lopez" --plan starter`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := plans.Parse(profilePlan)
		if err != nil {
			return err
		}
		slug := strings.ToLower(strings.TrimSpace(profileSlug))
		if slug == "" || strings.TrimSpace(profileName) == "" {
			return fmt.Errorf("slug and name are required")
		}

		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		p := &store.Profile{
			ID:          uuid.NewString(),
			Slug:        slug,
			DisplayName: strings.TrimSpace(profileName),
			Plan:        plan,
			CreatedAt:   time.Now().UTC(),
		}
		if err := st.CreateProfile(cmd.Context(), p); err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created profile %s (%s) on plan %s\n", p.ID, p.Slug, p.Plan)
		return nil
	},
}

var profileSetPlanCmd = &cobra.Command{
	Use:   "set-plan <profile-id> <plan>",
	Short: "Change a profile's plan",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := plans.Parse(args[1])
		if err != nil {
			return err
		}
		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetProfilePlan(cmd.Context(), args[0], plan); err != nil {
			return fmt.Errorf("failed to set plan: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile %s is now on plan %s\n", args[0], plan)
		return nil
	},
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Review abuse reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List abuse reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openModeration(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		reports, err := svc.List(cmd.Context(), store.ReportStatus(reportStatus))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCONTRIBUTION\tREASON\tSTATUS\tCREATED")
		for _, r := range reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.ContributionID, r.Reason, r.Status, r.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var reportsReviewCmd = &cobra.Command{
	Use:   "review <report-id> <reviewed|dismissed>",
	Short: "Record a moderation decision on a report",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := openModeration(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := svc.Review(cmd.Context(), args[0], store.ReportStatus(args[1])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report %s marked %s\n", args[0], args[1])
		return nil
	},
}

// openStore loads configuration and opens the configured database.
func openStore(ctx context.Context) (*store.Store, *config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewFromConfig(ctx, cfg.Database, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func openModeration(ctx context.Context) (*moderation.Service, *store.Store, error) {
	st, cfg, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	_, report := ratelimit.PoliciesFromConfig(cfg.Limits)
	svc, err := moderation.NewService(&moderation.Config{
		Policy:        report,
		FlagThreshold: cfg.Limits.AutoFlagThreshold,
	}, st, ratelimit.New(st, zap.NewNop()), zap.NewNop())
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return svc, st, nil
}
