package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/squidstack/squidflags/pkg/runtime"
)

// snapshotCmd prints one anonymous evaluation of every flag.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Evaluate all flags once and print them as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := findProvider(viper.GetString("flags.provider"))
		if err != nil {
			return err
		}
		snap, err := runtime.Evaluate(context.Background(), p, viper.GetString("flags.key"))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}
