/*
Package log provides structured logging for burrow using zerolog.

The package wraps a single global zerolog.Logger with configurable level and
output format, plus child-logger helpers that attach the identifiers the agent
cares about: component, hostname, block device id and dataset id.

# Usage

Initializing the Logger:

	import "github.com/cuemby/burrow/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:  log.DebugLevel,
		Output: os.Stderr,
	})

Structured Logging:

	log.Logger.Info().
		Str("dataset_id", dataset.DatasetID).
		Str("mountpoint", mountpoint).
		Msg("Dataset created")

Component Loggers:

	deployLog := log.WithComponent("deployer")
	deployLog.Debug().Int("volumes", len(volumes)).Msg("Discovered volumes")

	nodeLog := log.WithHostname(cfg.Hostname)
	nodeLog.Info().Str("backend", cfg.Backend.Name).Msg("Agent started")

Until Init is called the package logs JSON to stderr, so library code and
tests can log without setup.

# Levels

  - debug: per-volume discovery detail, command invocations
  - info: volume and dataset lifecycle, convergence summaries
  - warn: recoverable oddities in the backend directory tree
  - error: failed state changes and convergence cycles
*/
package log
