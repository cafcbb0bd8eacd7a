package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rjboer/GoSonar/internal/mdns"
)

func newDiscoverCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find sonar consoles on the local network",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, v, map[string]string{
				"timeout": "discovery.timeout",
				"service": "discovery.service",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(v)
			if err != nil {
				return err
			}
			start := time.Now()
			hosts, err := mdns.Discover(cmd.Context(), cfg.Discovery.Service, cfg.Discovery.Domain, cfg.Discovery.Timeout)
			if err != nil {
				return err
			}
			return printHosts(cmd, hosts, time.Since(start))
		},
	}
	cmd.Flags().Duration("timeout", 3*time.Second, "browse duration")
	cmd.Flags().String("service", mdns.DefaultService, "DNS-SD service type")
	return cmd
}

func printHosts(cmd *cobra.Command, hosts []mdns.Host, took time.Duration) error {
	out := cmd.OutOrStdout()
	if len(hosts) == 0 {
		fmt.Fprintf(out, "No consoles found (%s)\n", took.Truncate(time.Millisecond))
		return nil
	}
	fmt.Fprintf(out, "Discovered %d console(s) in %s\n", len(hosts), took.Truncate(time.Millisecond))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tURL\tTXT")
	for _, h := range hosts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", h.Instance, h.URL(), strings.Join(h.TXT, " "))
	}
	return w.Flush()
}
