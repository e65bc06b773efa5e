// Package logging provides structured logging for the DCCLite broker.
//
// It wraps log/slog with:
//
//   - Text output for the console, JSON for log shippers
//   - Default fields (service, version) on every entry
//   - Level filtering (debug, info, warn, error)
//   - Optional rotating file output through lumberjack
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stdout"   # stdout, stderr, file, both
//	  file:
//	    path: "./logs/dccbroker.log"
//	    max_size: 10     # megabytes
//	    max_backups: 5
//	    max_age: 30      # days
//	    compress: true
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	defer logger.Close()
//	logger.Info("listening", "port", 2181)
//
// *Logger satisfies the small Logger interfaces declared by the device,
// network and broker packages.
package logging
