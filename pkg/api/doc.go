/*
Package api exposes the burrow agent over HTTP and gRPC.

# HTTP endpoints

HealthServer serves the operator-facing endpoints:

  - GET /health: liveness, 200 while the process is up, with the last
    report of every component
  - GET /ready: 200 when the backend answers discovery, the last
    convergence cycle succeeded and no other component reports a failure,
    503 otherwise
  - GET /state: a fresh DiscoverLocalState as JSON
  - GET /changes: the change journal, optionally ?dataset=<id>
  - GET /metrics: Prometheus metrics
  - GET /deployment: the last desired configuration recorded in the journal

Collaborators are injected through HealthServerConfig as small interfaces,
so the server can be tested without a backend:

	hs := api.NewHealthServer(api.HealthServerConfig{
		Discoverer: deployer,
		Reconciler: recon,
		Journal:    store,
		Components: components,
		Version:    version,
	})
	go hs.Start("127.0.0.1:9090")

# gRPC

Server registers the standard grpc.health.v1 service and server reflection.
Both the overall status and the burrow.Agent service start NOT_SERVING and
are flipped by SetServing, which the agent calls after every cycle. Each
unary call is logged by LoggingInterceptor.
*/
package api
