package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/holdco/internal/costpool"
	"github.com/odyssey-erp/holdco/internal/monthclose"
	"github.com/odyssey-erp/holdco/internal/shared"
	"github.com/odyssey-erp/holdco/jobs"
)

// closeFile is the YAML layout accepted by `close enqueue`.
type closeFile struct {
	GroupID   int64  `yaml:"group_id"`
	HoldcoID  int64  `yaml:"holdco_id"`
	Period    string `yaml:"period"`
	IssueDate string `yaml:"issue_date"`
	DueDays   int    `yaml:"due_days"`
	LockedBy  string `yaml:"locked_by"`
	Lines     []struct {
		Category string `yaml:"category"`
		Amount   string `yaml:"amount"`
	} `yaml:"lines"`
	Weights []struct {
		CompanyID int64  `yaml:"company_id"`
		Weight    string `yaml:"weight"`
	} `yaml:"weights"`
}

// parseCloseFile decodes a month-close request. Amounts and weights are
// strings so they reach decimal.Decimal without a float round trip.
func parseCloseFile(r io.Reader) (jobs.CloseMonthPayload, error) {
	var f closeFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return jobs.CloseMonthPayload{}, fmt.Errorf("decode close file: %w", err)
	}
	if f.GroupID <= 0 {
		return jobs.CloseMonthPayload{}, fmt.Errorf("group_id must be positive")
	}
	period, err := shared.NormalizePeriod(f.Period)
	if err != nil {
		return jobs.CloseMonthPayload{}, err
	}
	in := monthclose.RunInput{
		HoldcoID: f.HoldcoID,
		Period:   period,
		DueDays:  f.DueDays,
		LockedBy: strings.TrimSpace(f.LockedBy),
	}
	if f.IssueDate != "" {
		in.IssueDate, err = time.Parse(time.DateOnly, f.IssueDate)
		if err != nil {
			return jobs.CloseMonthPayload{}, fmt.Errorf("issue_date: %w", err)
		}
	}
	for i, l := range f.Lines {
		amount, err := decimal.NewFromString(l.Amount)
		if err != nil {
			return jobs.CloseMonthPayload{}, fmt.Errorf("lines[%d].amount: %w", i, err)
		}
		in.Lines = append(in.Lines, costpool.LineInput{Category: l.Category, Amount: amount})
	}
	for i, w := range f.Weights {
		weight, err := decimal.NewFromString(w.Weight)
		if err != nil {
			return jobs.CloseMonthPayload{}, fmt.Errorf("weights[%d].weight: %w", i, err)
		}
		in.Weights = append(in.Weights, costpool.Weight{RecipientID: w.CompanyID, Weight: weight})
	}
	return jobs.CloseMonthPayload{GroupID: f.GroupID, Input: in}, nil
}

func newCloseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Month-close operations",
	}

	enqueue := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a month-close run described by a YAML file",
		Example: `  holdctl close enqueue --file close-2025-01.yaml

  # close-2025-01.yaml
  group_id: 9
  holdco_id: 1
  period: "2025-01"
  issue_date: "2025-01-31"
  due_days: 30
  locked_by: controller
  lines:
    - {category: "Shared IT", amount: "1000.00"}
  weights:
    - {company_id: 2, weight: "0.6"}
    - {company_id: 3, weight: "0.4"}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			fh, err := os.Open(path)
			if err != nil {
				return err
			}
			defer fh.Close()
			payload, err := parseCloseFile(fh)
			if err != nil {
				return err
			}
			return withJobsCLI(func(c *JobsCLI) error {
				info, err := c.EnqueueClose(cmd.Context(), payload)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
				return err
			})
		},
	}
	enqueue.Flags().String("file", "", "Path to the YAML close request")

	cmd.AddCommand(enqueue)
	return cmd
}
