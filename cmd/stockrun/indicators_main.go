package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stockrun/stockrun/internal/indicators"
)

func runIndicatorsList(cmd *cobra.Command, args []string) error {
	registry := indicators.NewDefaultRegistry()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISPLAY\tCATEGORY\tPERIODS\tPARAMS")
	for _, name := range registry.List() {
		ind, err := registry.Get(name, nil)
		if err != nil {
			return err
		}
		meta := ind.Metadata()
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			name, meta.DisplayName, meta.Category, ind.RequiredPeriods(), len(meta.Params))
	}
	w.Flush()

	fmt.Println("\nParameters:")
	for _, name := range registry.List() {
		ind, _ := registry.Get(name, nil)
		for _, p := range ind.Metadata().Params {
			fmt.Printf("  %s.%s (%s, default %g, range [%g, %g]): %s\n",
				name, p.Name, p.Type, p.Default, p.Min, p.Max, p.Description)
		}
	}
	return nil
}

func runStrategiesList(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	a, err := buildApp(configPath, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	strategies, err := a.strategies.List(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tDEFAULT\tCONDITIONS")
	for _, strat := range strategies {
		def := ""
		if strat.Default {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\n",
			strat.ID, strat.Name, strat.Version, def, len(strat.Conditions))
	}
	return w.Flush()
}
