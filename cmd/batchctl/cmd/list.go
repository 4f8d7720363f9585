package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List job definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		definitions, err := st.ListDefinitions(cmd.Context())
		if err != nil {
			return err
		}
		if len(definitions) == 0 {
			cmd.Println("No job definitions.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tJOB\tTYPE\tLABEL")
		for _, d := range definitions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Code, d.JobName, d.Type, d.Label)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
