/*
Package storage provides the BoltDB-backed change journal for burrow agents.

The journal is an append-only record of what the agent was asked to do and
what it did. It is deliberately not a state store: which volumes exist and
where they are attached is always read back from the storage backend. The
journal answers operator questions the backend cannot, such as which volume
was left behind when mkfs failed for a dataset.

# Layout

One file, <data-dir>/burrow.db, with two buckets:

	changes       sequence → ChangeRecord (JSON)
	deployments   sequence → Deployment   (JSON)

Keys are big-endian bucket sequences, so iteration returns records in the
order they were written and the last key is the newest.

# Usage

	store, err := storage.NewBoltStore("/var/lib/burrow")
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListChangesByDataset(datasetID)
	for _, r := range records {
		if r.Status == types.ChangeFailed && r.BlockDeviceID != "" {
			fmt.Printf("volume %s left attached: %s\n", r.BlockDeviceID, r.Error)
		}
	}

BoltDB holds an exclusive file lock, so only one agent process can open a
given data directory. Opening waits up to five seconds for the lock.
*/
package storage
