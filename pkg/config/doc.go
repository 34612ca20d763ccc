/*
Package config loads the agent configuration and desired configuration
documents.

Both are YAML. The agent configuration starts from Default and overrides
whatever the file sets:

	hostname: 192.0.2.1        # defaults to os.Hostname()
	backend:
	  name: loopback
	  root: /var/lib/burrow/loopback
	mount_root: /flocker
	filesystem_type: ext4
	poll_interval: 10s
	data_dir: /var/lib/burrow
	api:
	  http_addr: 127.0.0.1:9090
	  grpc_addr: 127.0.0.1:9091
	log:
	  level: info
	  json: false

The desired configuration lists the datasets each node should host. Sizes
are bytes, or binary units parsed with docker/go-units:

	nodes:
	  - hostname: 192.0.2.1
	    manifestations:
	      - dataset_id: 8ce5b3c4-07a1-4a8d-a0a3-5c1f2f0e1d9b
	        maximum_size: 10MiB
*/
package config
