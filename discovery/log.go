package discovery

import "github.com/btcsuite/btclog"

// log is the package-level logger for discovery. It is a no-op until a caller
// wires one up with UseLogger.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by discovery.
func UseLogger(logger btclog.Logger) {
	log = logger
}
