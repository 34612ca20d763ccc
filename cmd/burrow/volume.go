package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/volume"
)

func openBackend(cfg *config.Config) (volume.BlockDeviceAPI, error) {
	return volume.NewManager().Open(cfg.Backend)
}

func newVolumeCmd() *cobra.Command {
	volumeCmd := &cobra.Command{
		Use:   "volume",
		Short: "Operate on backend volumes directly",
	}

	volumeCmd.AddCommand(newVolumeCreateCmd())
	volumeCmd.AddCommand(newVolumeAttachCmd())
	volumeCmd.AddCommand(newVolumeListCmd())
	volumeCmd.AddCommand(newVolumeDevicePathCmd())

	return volumeCmd
}

func newVolumeCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create SIZE",
		Short: "Create an unattached volume",
		Long: `Create an unattached volume of the given size.

Examples:
  burrow volume create 100MiB
  burrow volume create 1073741824`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := units.RAMInBytes(args[0])
			if err != nil {
				return fmt.Errorf("invalid size %q: %v", args[0], err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			api, err := openBackend(cfg)
			if err != nil {
				return err
			}

			vol, err := api.CreateVolume(contextOf(cmd), size)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), vol.BlockDeviceID)
			return nil
		},
	}
}

func newVolumeAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach ID [HOST]",
		Short: "Attach a volume to a host, this node by default",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			host := cfg.Hostname
			if len(args) == 2 {
				host = args[1]
			}

			api, err := openBackend(cfg)
			if err != nil {
				return err
			}
			vol, err := api.AttachVolume(contextOf(cmd), args[0], host)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s attached to %s\n", vol.BlockDeviceID, vol.Host)
			return nil
		},
	}
}

func newVolumeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List volumes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			api, err := openBackend(cfg)
			if err != nil {
				return err
			}

			volumes, err := api.ListVolumes(contextOf(cmd))
			if err != nil {
				return err
			}
			types.SortVolumes(volumes)
			return printVolumes(cmd, volumes)
		},
	}
}

func printVolumes(cmd *cobra.Command, volumes []types.Volume) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSIZE\tHOST")
	for _, vol := range volumes {
		host := vol.Host
		if host == "" {
			host = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", vol.BlockDeviceID, units.BytesSize(float64(vol.Size)), host)
	}
	return w.Flush()
}

func newVolumeDevicePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device-path ID",
		Short: "Print the device backing an attached volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			api, err := openBackend(cfg)
			if err != nil {
				return err
			}

			device, err := api.GetDevicePath(contextOf(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), device)
			return nil
		},
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
