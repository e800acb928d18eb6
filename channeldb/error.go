package channeldb

import "fmt"

var (
	ErrGraphNodeNotFound = fmt.Errorf("unable to find node")
	ErrEdgeNotFound      = fmt.Errorf("edge for chanID not found")
	ErrSourceNodeNotSet  = fmt.Errorf("source node does not exist")
)
