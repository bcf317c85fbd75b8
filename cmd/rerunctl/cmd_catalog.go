package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Fetch the database/collection catalog from the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}

		structure, err := newClient(cfg).ListAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("list all: %w", err)
		}
		store.SetDBStructure(structure)

		dbs := make([]string, 0, len(structure))
		for db := range structure {
			dbs = append(dbs, db)
		}
		sort.Strings(dbs)

		for _, db := range dbs {
			fmt.Fprintln(os.Stdout, db)
			cols, _ := structure[db].([]any)
			for _, c := range cols {
				fmt.Fprintf(os.Stdout, "  %v\n", c)
			}
		}
		return nil
	},
}
