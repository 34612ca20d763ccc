package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/deploy"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// newDeployer opens the configured backend and builds a deployer for this node.
// journal and broker may be nil.
func newDeployer(cfg *config.Config, journal storage.Journal, broker *events.Broker) (*deploy.Deployer, error) {
	api, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	return deploy.NewDeployer(deploy.Config{
		Hostname:       cfg.Hostname,
		API:            api,
		MountRoot:      cfg.MountRoot,
		FilesystemType: cfg.FilesystemType,
		Events:         broker,
		Journal:        journal,
	})
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the datasets currently manifested on this node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			deployer, err := newDeployer(cfg, nil, nil)
			if err != nil {
				return err
			}

			state, err := deployer.DiscoverLocalState(contextOf(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, state)
		},
	}
}

func newPlanCmd() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the changes needed to reach a desired configuration",
		Long: `Compare the desired configuration with the datasets manifested on this
node and print the changes an apply would run. Nothing is modified.

Examples:
  burrow plan -f deployment.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename, _ := cmd.Flags().GetString("file")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			desired, err := config.LoadDeployment(filename)
			if err != nil {
				return err
			}
			deployer, err := newDeployer(cfg, nil, nil)
			if err != nil {
				return err
			}

			local, err := deployer.DiscoverLocalState(contextOf(cmd))
			if err != nil {
				return err
			}
			changes := deployer.CalculateNecessaryStateChanges(local, desired, types.Deployment{})
			fmt.Fprintln(cmd.OutOrStdout(), changes.String())
			return nil
		},
	}

	planCmd.Flags().StringP("file", "f", "", "Desired configuration file (required)")
	_ = planCmd.MarkFlagRequired("file")

	return planCmd
}

func newApplyCmd() *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Run one convergence cycle",
		Long: `Run a single convergence cycle against a desired configuration file:
create, attach, format and mount every dataset configured for this node
that is not yet manifested. Changes are recorded in the journal.

Examples:
  burrow apply -f deployment.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename, _ := cmd.Flags().GetString("file")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			store, err := storage.NewBoltStore(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("failed to open journal: %v", err)
			}
			defer store.Close()

			deployer, err := newDeployer(cfg, store, nil)
			if err != nil {
				return err
			}

			recon, err := reconciler.NewReconciler(reconciler.Config{
				Deployer: deployer,
				Source:   reconciler.FileSource{Path: filename},
				Journal:  store,
			})
			if err != nil {
				return err
			}

			result, err := recon.Reconcile(contextOf(cmd))
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d change(s), skipped %d, in %s\n",
				result.Planned, result.Skipped, result.Duration)
			return err
		},
	}

	applyCmd.Flags().StringP("file", "f", "", "Desired configuration file (required)")
	_ = applyCmd.MarkFlagRequired("file")

	return applyCmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
