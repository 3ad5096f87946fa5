package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mqdeck/mqdeck/broker"
	"github.com/mqdeck/mqdeck/editor"
	"github.com/mqdeck/mqdeck/entity"
)

func parseKind(arg string) (entity.Kind, error) {
	k := entity.Kind(strings.ToLower(arg))
	for _, known := range entity.Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kind %q (one of: %s)", arg, kindList())
}

func kindList() string {
	names := make([]string, len(entity.Kinds))
	for i, k := range entity.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

var listCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List entities of one kind",
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
		return printEntities(cmd.OutOrStdout(), rows)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <kind> <name>",
	Short: "Show one entity as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		e, err := client.Get(cmd.Context(), kind, args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), e)
	},
}

var applyFile string

var applyCmd = &cobra.Command{
	Use:   "apply <kind> -f <file>",
	Short: "Create or update an entity from a JSON file",
	Long: `Apply reads one entity from a JSON file and creates it, or updates it
when an entity of that name already exists. The payload is validated
locally before anything reaches the broker.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(applyFile)
		if err != nil {
			return err
		}
		var payload entity.Entity
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse %s: %w", applyFile, err)
		}

		// Update when the name already exists, create otherwise.
		name := payload.Name
		if _, err := client.Get(cmd.Context(), kind, name); err != nil {
			var nf *broker.NotFoundError
			if !errors.As(err, &nf) {
				return err
			}
			name = ""
		}

		ctl := editor.New(client, kind, name)
		defer ctl.Teardown()
		if err := ctl.Load(cmd.Context()); err != nil {
			return err
		}
		if err := ctl.Edit(func(e *entity.Entity) { *e = *payload.Clone() }); err != nil {
			return err
		}
		if err := ctl.Save(cmd.Context()); err != nil {
			return err
		}
		verb := "updated"
		if name == "" {
			verb = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %q %s\n", kind, payload.Name, verb)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <kind> <name>",
	Short: "Delete an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		name := args[1]
		if !yesFlag {
			fmt.Fprintf(cmd.OutOrStdout(), "Delete %s %q? [y/N]: ", kind, name)
			reader := bufio.NewReader(cmd.InOrStdin())
			answer, _ := reader.ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
		}
		if err := client.Delete(cmd.Context(), kind, name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %q deleted\n", kind, name)
		return nil
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <kind> <name> <on|off>",
	Short: "Enable or disable an entity",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		var enabled bool
		switch strings.ToLower(args[2]) {
		case "on", "true", "enable":
			enabled = true
		case "off", "false", "disable":
			enabled = false
		default:
			return fmt.Errorf("last argument must be on or off, got %q", args[2])
		}
		if err := client.Toggle(cmd.Context(), kind, args[1], enabled); err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %q %s\n", kind, args[1], state)
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "path to the entity JSON file")
	applyCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(listCmd, getCmd, applyCmd, deleteCmd, toggleCmd)
}
