package routing

import "github.com/btcsuite/btclog"

// log is the package-level logger for routing. It is a no-op until a caller
// wires one up with UseLogger.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by routing.
func UseLogger(logger btclog.Logger) {
	log = logger
}
