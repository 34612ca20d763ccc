/*
Package reconciler drives the deployer in a loop so that a node keeps
converging on its desired configuration.

Each cycle:

 1. loads the desired configuration from a DesiredSource
 2. journals it when it differs from the last one saved
 3. discovers local state through the deployer
 4. calculates the missing datasets
 5. drops datasets the journal shows already have a volume on this node
 6. runs the remaining creations in parallel

The first cycle starts as soon as Start is called, later ones on every tick
of the configured interval (10 seconds by default). A failed cycle is logged,
counted in burrow_reconciliation_errors_total and retried on the next tick.

	r, err := reconciler.NewReconciler(reconciler.Config{
		Deployer: d,
		Source:   reconciler.FileSource{Path: "/etc/burrow/desired.yaml"},
		Journal:  store,
		OnCycle: func(res reconciler.Result) {
			healthy.Store(!res.Failed())
		},
	})
	if err != nil {
		return err
	}
	r.Start()
	defer r.Stop()

Reconcile runs a single cycle synchronously and is what `burrow apply` uses.

# Volumes That Never Finish

Creating a dataset is not rolled back. If formatting or mounting fails after
the volume was attached, the journal still records the volume id, and step 5
keeps the agent from allocating a second volume for the same dataset. Such a
volume is left for an operator to inspect:

	records, _ := store.ListChangesByDataset(id)

Without a journal every cycle recalculates from discovery alone.
*/
package reconciler
