package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Print the configured source catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		regs, err := loadRegistrations()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(regs)
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
