package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"spacehub/api-gateway/internal/registry"
)

func routesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the compiled route table in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			repo, err := st.repository(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			reg := registry.New()
			if err := registry.Load(cmd.Context(), repo, reg, loadOptions); err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reg.Routes())
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATTERN\tSERVICE\tPRIORITY\tUPSTREAM")
			for _, rt := range reg.Routes() {
				svc, _ := reg.Get(rt.Service)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rt.Pattern, rt.Service, rt.Priority, svc.BaseURL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
