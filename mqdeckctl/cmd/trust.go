package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage OPC UA server certificates",
}

var certsListCmd = &cobra.Command{
	Use:   "list <server>",
	Short: "List certificates a server has presented",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		certs, err := client.ListCertificates(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("list certificates: %w", err)
		}
		return printCertificates(cmd.OutOrStdout(), certs)
	},
}

var trustCmd = &cobra.Command{
	Use:   "trust <server> <fingerprint>",
	Short: "Trust a rejected server certificate",
	Long: `Trust moves a certificate from the rejected to the trusted partition.
This is a dedicated broker operation, not a field edit: the broker
re-evaluates pending connections once the certificate is trusted.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.TrustCertificate(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "certificate %s trusted\n", args[1])
		return nil
	},
}

var certsDeleteCmd = &cobra.Command{
	Use:   "delete <server> <fingerprint>",
	Short: "Delete a certificate from the server's store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.DeleteCertificate(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "certificate %s deleted\n", args[1])
		return nil
	},
}

func init() {
	certsCmd.AddCommand(certsListCmd, certsDeleteCmd)
	rootCmd.AddCommand(certsCmd, trustCmd)
}
