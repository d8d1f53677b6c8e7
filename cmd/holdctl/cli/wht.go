package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/holdco/internal/payments"
	"github.com/odyssey-erp/holdco/internal/platform/db"
)

type scheduleSource interface {
	GetWHTSchedule(ctx context.Context, issuerID int64, period string) ([]payments.ScheduleRow, error)
}

// renderWHTSchedule prints one line per tax type with grouped amounts.
func renderWHTSchedule(w io.Writer, tag language.Tag, issuerID int64, period string, rows []payments.ScheduleRow) error {
	p := message.NewPrinter(tag)
	if _, err := fmt.Fprintf(w, "WHT schedule for company %d, %s\n", issuerID, period); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TAX TYPE\tNOTES\tTOTAL")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", row.TaxType, row.Count, formatAmount(p, row.Total))
	}
	if len(rows) == 0 {
		fmt.Fprintln(tw, "(none)\t0\t0.00")
	}
	return tw.Flush()
}

// formatAmount renders d with two decimals and the locale's digit grouping.
func formatAmount(p *message.Printer, d decimal.Decimal) string {
	abs := d.Abs().Round(2)
	fixed := abs.StringFixed(2)
	out := p.Sprintf("%d", abs.IntPart()) + fixed[strings.IndexByte(fixed, '.'):]
	if d.Round(2).IsNegative() {
		out = "-" + out
	}
	return out
}

// newScheduleSource is swapped in tests.
var newScheduleSource = func(ctx context.Context, dsn string) (scheduleSource, func(), error) {
	pool, err := db.New(ctx, dsn, db.Options{MaxConns: 2})
	if err != nil {
		return nil, nil, err
	}
	svc := payments.NewService(payments.NewRepository(pool), nil, nil)
	return svc, pool.Close, nil
}

func newWHTCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wht",
		Short: "Withholding tax reports",
	}

	schedule := &cobra.Command{
		Use:     "schedule",
		Short:   "Print the unremitted withholding per tax type",
		Example: `  holdctl wht schedule --company 2 --period 2025-01`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			company, _ := cmd.Flags().GetInt64("company")
			period, _ := cmd.Flags().GetString("period")
			locale, _ := cmd.Flags().GetString("locale")
			if company <= 0 {
				return fmt.Errorf("--company must be positive")
			}
			tag, err := language.Parse(locale)
			if err != nil {
				return fmt.Errorf("--locale: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			src, closeFn, err := newScheduleSource(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer closeFn()
			rows, err := src.GetWHTSchedule(cmd.Context(), company, period)
			if err != nil {
				return err
			}
			return renderWHTSchedule(cmd.OutOrStdout(), tag, company, period, rows)
		},
	}
	schedule.Flags().Int64("company", 0, "Issuer company id")
	schedule.Flags().String("period", "", "Period in YYYY-MM format")
	schedule.Flags().String("locale", "en", "Locale used to group amounts")

	cmd.AddCommand(schedule)
	return cmd
}
