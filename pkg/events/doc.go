/*
Package events provides an in-memory event broker for burrow agents.

The broker decouples the deployer from anything that wants to watch it
converge. Publish delivers on the caller's goroutine without blocking: each
subscription has its own buffer and an event that does not fit is dropped for
that subscription only, counted by Subscription.Dropped and the
burrow_events_dropped_total metric. Subscriptions may ask for a subset of
event types.

# Event Types

Volume events:
  - volume.created: a backend volume was allocated for a dataset
  - volume.attached: the volume was attached to this node

Dataset events:
  - dataset.created: the dataset is formatted and mounted
  - dataset.failed: creating the dataset failed part way

Agent events:
  - convergence.completed: a reconciliation cycle finished

Metadata carries the identifiers involved (dataset_id, blockdevice_id,
mountpoint, hostname) so that subscribers do not need to parse messages.

# Usage

	broker := events.NewBroker()
	defer broker.Stop()

	sub := broker.Subscribe(events.EventDatasetCreated, events.EventDatasetFailed)
	defer sub.Close()

	go func() {
		for ev := range sub.Events {
			fmt.Println(ev.Type, ev.Metadata["dataset_id"])
		}
	}()

	broker.Publish(events.NewEvent(events.EventDatasetCreated, "dataset ready",
		map[string]string{"dataset_id": id}))

Stop closes every subscription and later publishes are discarded.

Events are not persisted. The change journal in pkg/storage is the durable
record of what the agent did.
*/
package events
