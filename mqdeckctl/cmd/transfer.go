package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mqdeck/mqdeck/entity"
	"github.com/mqdeck/mqdeck/transfer"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export <kind>",
	Short: "Export all entities of one kind to a JSON archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		rows, err := client.List(cmd.Context(), kind)
		if err != nil {
			return fmt.Errorf("list %s: %w", kind, err)
		}
		name, data, err := transfer.Export(string(kind)+"s", rows, time.Now())
		if err != nil {
			return err
		}
		path := name
		if exportDir != "" {
			path = exportDir + string(os.PathSeparator) + name
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d %s entities to %s\n", len(rows), kind, path)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <kind> <file>",
	Short: "Import entities from a JSON archive",
	Long: `Import reads a JSON archive (a plain JSON array of entities) and
creates each element. A failing element is reported and skipped; the
rest of the archive still imports.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		items, err := transfer.ParseArchive(args[1], data)
		if err != nil {
			return err
		}
		res := transfer.Import(cmd.Context(), items, func(ctx context.Context, raw json.RawMessage) error {
			var e entity.Entity
			if err := json.Unmarshal(raw, &e); err != nil {
				return err
			}
			return client.Create(ctx, kind, &e)
		})
		for _, e := range res.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d entities\n", res.Imported, res.Imported+res.Failed)
		if res.Failed > 0 {
			return fmt.Errorf("%d entities failed to import", res.Failed)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "directory for the archive (default: current directory)")
	rootCmd.AddCommand(exportCmd, importCmd)
}
