package bolt12

import "github.com/btcsuite/btclog"

// log is the package-level logger for bolt12. It is a no-op until a caller
// wires one up with UseLogger.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by bolt12.
func UseLogger(logger btclog.Logger) {
	log = logger
}
