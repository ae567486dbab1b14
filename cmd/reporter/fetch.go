package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/reporter-client/pkg/criteria"
	"github.com/Sternrassler/reporter-client/pkg/pagination"
)

var (
	awardYears         []int
	awardActivityCodes []string
	awardPPIDs         []int64

	queryPayload string
	queryNCI     bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Retrieve every page of a search and print the table",
}

var fetchAwardsCmd = &cobra.Command{
	Use:   "awards",
	Short: "Retrieve NCI awards by fiscal year and activity code",
	Long: `Retrieve NCI-administered awards for the given fiscal years and activity
codes, newest project start date first. --pi-profile-ids narrows the search to
specific principal investigators.

Examples:
  reporter fetch awards --years 2022,2023 --activity-codes R01,R37
  reporter fetch awards --years 2023 --activity-codes R01 --pi-profile-ids 9999999 -o csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		comp, err := newComponents(cfg)
		if err != nil {
			return err
		}
		defer comp.close()

		var res *pagination.Result
		if len(awardPPIDs) > 0 {
			res, err = comp.reporter.NCIAwardsByYearActivityCodesAndPPIDs(cmd.Context(), awardYears, awardActivityCodes, awardPPIDs)
		} else {
			res, err = comp.reporter.NCIAwardsByYearAndActivityCodes(cmd.Context(), awardYears, awardActivityCodes)
		}
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), res)
	},
}

var fetchQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Retrieve a search given as a JSON payload",
	Long: `Retrieve a search described by a JSON payload in the endpoint's own shape:

  {"criteria": {"fiscal_years": [2023], "org_states": ["MD"]},
   "sort_field": "project_start_date", "sort_order": "desc"}

--payload - reads the payload from stdin. With --nci the NCI agency filter and
the newest-first sort are applied on top of the payload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readCriteria(cmd.InOrStdin(), queryPayload)
		if err != nil {
			return err
		}

		comp, err := newComponents(cfg)
		if err != nil {
			return err
		}
		defer comp.close()

		var res *pagination.Result
		if queryNCI {
			res, err = comp.reporter.NCIAwardsByPayload(cmd.Context(), c)
		} else {
			res, err = comp.retriever().FetchAll(cmd.Context(), c)
		}
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), res)
	},
}

var fetchCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of records a payload matches",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readCriteria(cmd.InOrStdin(), queryPayload)
		if err != nil {
			return err
		}

		comp, err := newComponents(cfg)
		if err != nil {
			return err
		}
		defer comp.close()

		total, err := comp.retriever().FetchTotalCount(cmd.Context(), c)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), total)
		return nil
	},
}

func init() {
	fetchAwardsCmd.Flags().IntSliceVar(&awardYears, "years", nil, "fiscal years, e.g. 2022,2023")
	fetchAwardsCmd.Flags().StringSliceVar(&awardActivityCodes, "activity-codes", nil, "activity codes, e.g. R01,R37")
	fetchAwardsCmd.Flags().Int64SliceVar(&awardPPIDs, "pi-profile-ids", nil, "PI profile IDs")
	_ = fetchAwardsCmd.MarkFlagRequired("years")
	_ = fetchAwardsCmd.MarkFlagRequired("activity-codes")

	for _, c := range []*cobra.Command{fetchQueryCmd, fetchCountCmd} {
		c.Flags().StringVar(&queryPayload, "payload", "", "payload file, or - for stdin")
		_ = c.MarkFlagRequired("payload")
	}
	fetchQueryCmd.Flags().BoolVar(&queryNCI, "nci", false, "apply the NCI agency filter and sort")

	fetchCmd.AddCommand(fetchAwardsCmd)
	fetchCmd.AddCommand(fetchQueryCmd)
	fetchCmd.AddCommand(fetchCountCmd)
}

// readCriteria parses a payload from path, or from stdin when path is "-".
func readCriteria(stdin io.Reader, path string) (criteria.Criteria, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return criteria.Criteria{}, fmt.Errorf("read payload: %w", err)
	}

	c, err := criteria.Parse(data)
	if err != nil {
		return criteria.Criteria{}, fmt.Errorf("parse payload: %w", err)
	}
	return c, nil
}

func writeResult(w io.Writer, res *pagination.Result) error {
	logger.Info().
		Str("run_id", res.RunID).
		Int("rows", res.Table.Len()).
		Int("total", res.Total).
		Str("status", string(res.Status)).
		Msg("Writing table")

	if res.Status == pagination.StopMalformed {
		logger.Warn().Str("run_id", res.RunID).Msg("Retrieval stopped on a response without results; table may be incomplete")
	}

	return res.Table.Write(w, cfg.Format())
}
