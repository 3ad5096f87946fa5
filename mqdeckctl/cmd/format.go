package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mqdeck/mqdeck/entity"
)

// printEntities writes rows in the selected output format.
func printEntities(w io.Writer, rows []entity.Entity) error {
	if outputFormat == "json" {
		return printJSON(w, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tNAMESPACE\tNODE\tENABLED")
	for _, e := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", e.Name, e.Namespace, e.NodeID, e.Enabled)
	}
	return tw.Flush()
}

func printCertificates(w io.Writer, certs []entity.Certificate) error {
	if outputFormat == "json" {
		return printJSON(w, certs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINGERPRINT\tTRUSTED\tSUBJECT\tVALID UNTIL")
	for _, c := range certs {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", c.Fingerprint, c.Trusted, c.Subject, c.ValidUntil)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
