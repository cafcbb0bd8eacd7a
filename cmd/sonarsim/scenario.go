package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rjboer/GoSonar/internal/acoustic"
	"github.com/rjboer/GoSonar/internal/sim"
)

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Inspect and validate scenario files",
	}
	cmd.AddCommand(newScenarioValidateCmd(), newScenarioDefaultCmd())
	return cmd
}

func newScenarioValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a scenario file and list its contacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := sim.LoadScenario(args[0])
			if err != nil {
				return err
			}
			s, err := sim.New(sc, nil, nil)
			if err != nil {
				return err
			}
			s.Tick(0)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scenario %q: %d contact(s), gain %.2f, compression %gx\n",
				sc.Name, len(sc.Targets), sc.Gain(), sc.Compression)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tRANGE\tBEARING\tSNR\tDETECTED\tBLADE HZ")
			for _, t := range s.Targets() {
				fmt.Fprintf(w, "%s\t%s\t%.0f\t%05.1f\t%.1f\t%t\t%.1f\n",
					t.ID, t.Signature.VesselType, t.Range, t.Bearing, t.SNR, t.Detected,
					acoustic.BladeRate(t.Signature.ShaftRPM, t.Signature.BladeCount))
			}
			return w.Flush()
		},
	}
}

func newScenarioDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default",
		Short: "Print the built-in scenario as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(sim.DefaultScenario()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
