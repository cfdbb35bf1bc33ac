// Command portmapctl is a thin demonstrator over the portmap library: it
// wraps the public Controller API 1:1 for manual exercising and
// smoke-testing. It holds no business logic of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-portmap/portmap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "portmapctl",
		Short: "Create, inspect and remove NAT port mappings (NAT-PMP/PCP/UPnP)",
	}

	root.AddCommand(newAddCmd(), newDeleteCmd(), newProbeCmd(), newListCmd())
	return root
}

func newController() *portmap.Controller {
	return portmap.New()
}

func newAddCmd() *cobra.Command {
	var (
		internalPort int
		externalPort int
		lifetime     uint32
		proto        string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a port mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := newController()
			defer ctrl.Close(context.Background())

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			var m *portmap.Mapping
			switch proto {
			case "", "auto":
				m = ctrl.AddMapping(ctx, internalPort, externalPort, lifetime)
			case "natpmp":
				m = ctrl.AddMappingPmp(ctx, internalPort, externalPort, lifetime)
			case "pcp":
				m = ctrl.AddMappingPcp(ctx, internalPort, externalPort, lifetime)
			case "upnp":
				m = ctrl.AddMappingUpnp(ctx, internalPort, externalPort, lifetime)
			default:
				return fmt.Errorf("unknown protocol %q: want auto, natpmp, pcp or upnp", proto)
			}

			printMapping(m)
			if m.Failed() {
				return fmt.Errorf("add_mapping failed")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&internalPort, "internal-port", 0, "internal (LAN) port")
	cmd.Flags().IntVar(&externalPort, "external-port", 0, "requested external port (0 lets the gateway choose, where supported)")
	cmd.Flags().Uint32Var(&lifetime, "lifetime", 3600, "requested lifetime in seconds (0 = router's default pace)")
	cmd.Flags().StringVar(&proto, "protocol", "auto", "protocol to use: auto, natpmp, pcp, upnp")
	cmd.MarkFlagRequired("internal-port")
	cmd.MarkFlagRequired("external-port")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	var externalPort int

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a port mapping by external port",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := newController()
			defer ctrl.Close(context.Background())

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			ok := ctrl.DeleteMapping(ctx, externalPort)
			fmt.Println(ok)
			if !ok {
				return fmt.Errorf("delete_mapping failed or unknown port")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&externalPort, "external-port", 0, "external port to delete")
	cmd.MarkFlagRequired("external-port")
	return cmd
}

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe which protocols this gateway supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := newController()
			defer ctrl.Close(context.Background())

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			snap := ctrl.ProbeProtocolSupport(ctx)
			fmt.Printf("natpmp=%s pcp=%s upnp=%s upnp_control_url=%s\n",
				boolPtrString(snap.NatPmp), boolPtrString(snap.Pcp), boolPtrString(snap.Upnp),
				ctrl.GetUpnpControlURL())
			return nil
		},
	}
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active mappings created by this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := newController()
			defer ctrl.Close(context.Background())

			for port, m := range ctrl.GetActiveMappings() {
				fmt.Printf("external_port=%d protocol=%s internal=%s:%d lifetime=%d/%d\n",
					port, m.Protocol, m.InternalIP, m.InternalPort, m.ActualLifetime, m.RequestedLifetime)
			}
			return nil
		},
	}
	return cmd
}

func printMapping(m *portmap.Mapping) {
	if m.Failed() {
		fmt.Printf("failed: %s\n", m.ErrInfo)
		return
	}
	fmt.Printf("protocol=%s internal=%s:%d external_port=%d lifetime=%d/%d control_url=%s\n",
		m.Protocol, m.InternalIP, m.InternalPort, m.ExternalPort, m.ActualLifetime, m.RequestedLifetime, m.ControlURL)
}

func boolPtrString(b *bool) string {
	if b == nil {
		return "unknown"
	}
	if *b {
		return "true"
	}
	return "false"
}
