package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacentio/skutrail/history"
)

type historyOptions struct {
	id     string
	sku    string
	recent bool
	days   int
	event  string
	limit  int
}

func newHistoryCmd(app func() *App) *cobra.Command {
	var opts historyOptions

	cmd := &cobra.Command{
		Use:   "history [type]",
		Short: "View SKU history and audit trail",
		Long: `View SKU history records, newest first.

Example:
  skuctl history product --id 0193...
  skuctl history --sku TM-TSH-ABC12345
  skuctl history --recent --days 7 --event regenerated`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entityType string
			if len(args) == 1 {
				entityType = args[0]
			}
			return runHistory(cmd, app(), entityType, opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Entity ID")
	cmd.Flags().StringVar(&opts.sku, "sku", "", "SKU to search for, old or new")
	cmd.Flags().BoolVar(&opts.recent, "recent", false, "Show recent changes only")
	cmd.Flags().IntVar(&opts.days, "days", 7, "Number of days for --recent")
	cmd.Flags().StringVar(&opts.event, "event", "", "Filter by event type (created, regenerated, modified, deleted)")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "Maximum number of records to display")

	cmd.AddCommand(newCleanupCmd(app))
	return cmd
}

func eventTypeNames() string {
	names := make([]string, len(history.EventTypes))
	for i, t := range history.EventTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func runHistory(cmd *cobra.Command, app *App, entityType string, opts historyOptions) error {
	if app.History == nil {
		return errNoHistory
	}
	if opts.limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", opts.limit)
	}
	out := cmd.OutOrStdout()

	f := history.Filter{Limit: opts.limit, Descending: true}
	switch {
	case entityType != "" && opts.id != "":
		f.SubjectType, f.SubjectID = entityType, opts.id
		printf(out, "Showing history for %s ID: %s", entityType, opts.id)
	case entityType != "":
		f.SubjectType = entityType
		printf(out, "Showing history for %s", entityType)
	case opts.id != "":
		return fmt.Errorf("--id requires an entity type")
	}
	if opts.sku != "" {
		f.Sku = opts.sku
		printf(out, "Showing history for SKU: %s", opts.sku)
	}
	if opts.recent {
		f.Since = app.now().AddDate(0, 0, -opts.days)
		printf(out, "Showing changes from the last %d days", opts.days)
	}
	if opts.event != "" {
		t, err := history.ParseEventType(opts.event)
		if err != nil {
			return fmt.Errorf("invalid event type, must be one of: %s", eventTypeNames())
		}
		f.EventType = t
		printf(out, "Filtering by event type: %s", t)
	}

	records, err := app.History.Find(cmd.Context(), f)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		printf(out, "No history records found.")
		return nil
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			r.ID.String(),
			r.FormattedEventType(),
			orDash(r.OldSku),
			orDash(r.NewSku),
			r.SubjectType,
			r.SubjectID,
			orDash(r.ActorID),
			formatTime(r.CreatedAt),
		}
	}
	fmt.Fprintln(out)
	if err := printTable(out, []string{"ID", "Event", "Old SKU", "New SKU", "Model", "Model ID", "User ID", "Date"}, rows); err != nil {
		return err
	}
	fmt.Fprintln(out)
	printf(out, "Showing %d record(s)", len(records))
	if len(records) >= opts.limit {
		printf(out, "Note: Results limited to %d records. Use --limit to see more.", opts.limit)
	}
	return nil
}

type cleanupOptions struct {
	days   int
	before string
	force  bool
	dryRun bool
}

const cleanupSampleSize = 10

func newCleanupCmd(app func() *App) *cobra.Command {
	var opts cleanupOptions

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old SKU history records",
		Long: `Delete SKU history records created before a cutoff. The cutoff is
taken from --before, then --days, then the configured retention_days.

Example:
  skuctl history cleanup --days 90 --dry-run
  skuctl history cleanup --before 2025-01-01 --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd, app(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.days, "days", 0, "Delete records older than this many days")
	cmd.Flags().StringVar(&opts.before, "before", "", "Delete records before this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Show what would be deleted without deleting")
	return cmd
}

func runCleanup(cmd *cobra.Command, app *App, opts cleanupOptions) error {
	if app.History == nil {
		return errNoHistory
	}
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	var cutoff time.Time
	switch {
	case opts.before != "":
		t, err := time.Parse(time.DateOnly, opts.before)
		if err != nil {
			return fmt.Errorf("invalid date format %q, please use YYYY-MM-DD", opts.before)
		}
		cutoff = t
	case opts.days < 0:
		return fmt.Errorf("--days must be positive, got %d", opts.days)
	case opts.days > 0:
		cutoff = app.now().UTC().AddDate(0, 0, -opts.days)
	default:
		days := app.History.Config().RetentionDays
		if days == nil {
			printf(out, "No retention policy configured and no cutoff date specified.")
			printf(out, "Use --days or --before option, or configure retention_days in config.")
			return nil
		}
		cutoff = app.now().UTC().AddDate(0, 0, -*days)
	}
	date := cutoff.Format(time.DateOnly)

	count, err := app.History.Store().CountBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if count == 0 {
		printf(out, "No history records found before %s", date)
		return nil
	}
	printf(out, "Found %d history record(s) before %s", count, date)

	if opts.dryRun {
		printf(out, "Dry run mode - no records will be deleted.")
		sample, err := app.History.Find(ctx, history.Filter{Before: cutoff, Descending: true, Limit: cleanupSampleSize})
		if err != nil {
			return err
		}
		rows := make([][]string, len(sample))
		for i, r := range sample {
			rows[i] = []string{
				r.ID.String(),
				r.FormattedEventType(),
				orDash(r.NewSku, r.OldSku),
				r.SubjectType,
				formatTime(r.CreatedAt),
			}
		}
		fmt.Fprintln(out)
		if err := printTable(out, []string{"ID", "Event", "SKU", "Model", "Date"}, rows); err != nil {
			return err
		}
		if count > cleanupSampleSize {
			printf(out, "Showing %d of %d records...", cleanupSampleSize, count)
		}
		return nil
	}

	if !opts.force {
		ok, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete %d history record(s) before %s?", count, date))
		if err != nil {
			return err
		}
		if !ok {
			printf(out, "Operation cancelled.")
			return nil
		}
	}

	deleted, err := app.History.CleanupBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	printf(out, "Successfully deleted %d history record(s)", deleted)
	return nil
}

// confirm asks a yes/no question defaulting to no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s (yes/no) [no]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
