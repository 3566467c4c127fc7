package cli

import (
	"fmt"
	"strings"

	"github.com/mchmarny/loanrisk/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	historyLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Limits number of runs returned",
		Value: data.RunLimitDefault,
	}

	historyModeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: fmt.Sprintf("Only list runs of this mode [%s]", strings.Join(data.RunModes, ", ")),
	}

	historyCmd = &cli.Command{
		Name:            "history",
		Usage:           "List recent scoring runs",
		HideHelpCommand: true,
		Action:          cmdHistory,
		Flags: []cli.Flag{
			historyLimitFlag,
			historyModeFlag,
		},
	}
)

func optional(val string) *string {
	if val == "" {
		return nil
	}
	return &val
}

func cmdHistory(c *cli.Context) error {
	cfg := getConfig(c)

	mode := optional(c.String(historyModeFlag.Name))
	if mode != nil && !data.Contains(data.RunModes, *mode) {
		return fmt.Errorf("invalid mode: %s (permitted options: %s)", *mode, strings.Join(data.RunModes, ", "))
	}

	runs, err := data.GetRuns(cfg.DB, mode, c.Int(historyLimitFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to query runs: %w", err)
	}
	return encode(c.App.Writer, cfg.Format, runs)
}
