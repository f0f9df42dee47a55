package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"forge/config"
	"forge/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent workflow runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		store, err := history.NewStore(cfg.History.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Recent(historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no recorded runs")
			return nil
		}
		for _, e := range entries {
			status := "fail"
			if e.TestSuccess {
				status = "pass"
			}
			fmt.Printf("%s  %-40.40s  iters=%d files=%d tests=%s findings=%d\n",
				e.CreatedAt.Format("2006-01-02 15:04"), e.Task, e.Iterations, e.Files, status, e.Findings)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
}
