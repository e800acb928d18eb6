// Package routing implements Dijkstra pathfinding over the channel graph
// stored in channeldb, building payment routes that respect per-hop fee and
// CLTV-delta feasibility constraints.
package routing

import (
	"container/heap"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lnmobile/lncore/channeldb"
	"github.com/lnmobile/lncore/lnwire"
)

// cltvCostWeight converts a CLTV delta (in blocks) into the same
// millisatoshi unit as fees, so the two can be summed into a single
// Dijkstra edge weight.
const cltvCostWeight = 10

// Hop is one leg of a constructed payment route.
type Hop struct {
	PubKeyBytes   [33]byte
	ChannelID     uint64
	AmtToForward  lnwire.MilliSatoshi
	Fee           lnwire.MilliSatoshi
	OutgoingCLTV  uint32
}

// PaymentRoute is a fully constructed path from source to destination, with
// amounts and the CLTV expiry already built up hop by hop.
type PaymentRoute struct {
	Hops             []*Hop
	TotalAmountMsat  lnwire.MilliSatoshi
	TotalFeeMsat     lnwire.MilliSatoshi
	TotalCLTVExpiry  uint32
}

// Restrictions bounds a pathfinding attempt.
type Restrictions struct {
	MaxFeeMsat    lnwire.MilliSatoshi
	MaxCLTVExpiry uint32

	// FinalCLTVDelta is the CLTV delta the final hop requires, added to
	// the current block height to produce the destination's CLTV
	// expiry.
	FinalCLTVDelta uint16
}

// Error kinds returned by FindRoute.
var (
	ErrNoRouteFound      = fmt.Errorf("unable to find a path to destination")
	ErrNodeUnknown       = fmt.Errorf("source or destination node not found in graph")
	ErrFeeBudgetExceeded = fmt.Errorf("no route satisfies the fee budget")
	ErrCltvBudgetExceeded = fmt.Errorf("no route satisfies the cltv budget")
)

// candidateEdge is a directed edge used internally while relaxing the graph.
type candidateEdge struct {
	channelID uint64
	toNode    [33]byte
	policy    *channeldb.ChannelEdgePolicy
}

// dijkstraNode is an entry in the priority queue used by FindRoute.
type dijkstraNode struct {
	pubKeyBytes [33]byte
	dist        int64
	index       int
}

type nodeHeap []*dijkstraNode

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *nodeHeap) Push(x interface{}) {
	n := x.(*dijkstraNode)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// FindRoute runs Dijkstra from source to destination over graph, honoring
// amtMsat's feasibility at every hop and the restrictions' fee/CLTV budgets.
// currentHeight is the chain tip used to seed the destination's CLTV expiry.
func FindRoute(graph *channeldb.ChannelGraph, source, destination *btcec.PublicKey,
	amtMsat lnwire.MilliSatoshi, currentHeight uint32,
	restrictions *Restrictions) (*PaymentRoute, error) {

	srcKey := pubKeyBytes(source)
	dstKey := pubKeyBytes(destination)

	if srcKey == dstKey {
		return nil, ErrNoRouteFound
	}

	if _, err := graph.FetchLightningNode(source); err != nil {
		return nil, ErrNodeUnknown
	}
	if _, err := graph.FetchLightningNode(destination); err != nil {
		return nil, ErrNodeUnknown
	}

	// adjacency maps a node to the set of edges directed *into* it, since
	// we relax the graph backward from the destination: the amount and
	// accumulated CLTV at each node depend only on what follows it on
	// the route, per spec's "amounts build up from the destination"
	// rule.
	incoming := make(map[[33]byte][]candidateEdge)
	if err := graph.ForEachChannel(func(info *channeldb.ChannelEdgeInfo,
		p1, p2 *channeldb.ChannelEdgePolicy) error {

		key1 := pubKeyBytes(info.NodeKey1)
		key2 := pubKeyBytes(info.NodeKey2)

		if p1 != nil {
			incoming[key2] = append(incoming[key2], candidateEdge{
				channelID: info.ChannelID,
				toNode:    key1,
				policy:    p1,
			})
		}
		if p2 != nil {
			incoming[key1] = append(incoming[key1], candidateEdge{
				channelID: info.ChannelID,
				toNode:    key2,
				policy:    p2,
			})
		}
		return nil
	}); err != nil {
		return nil, err
	}

	type nodeState struct {
		dist       int64
		amount     lnwire.MilliSatoshi
		fee        lnwire.MilliSatoshi
		cltv       uint32
		nextEdge   *candidateEdge
		nextAmount lnwire.MilliSatoshi
		nextCLTV   uint32
		visited    bool
	}

	dstCLTV := currentHeight + uint32(restrictions.FinalCLTVDelta)

	states := map[[33]byte]*nodeState{
		dstKey: {dist: 0, amount: amtMsat, cltv: dstCLTV},
	}

	pq := &nodeHeap{{pubKeyBytes: dstKey, dist: 0}}
	heap.Init(pq)

	var feeLimited, cltvLimited bool

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*dijkstraNode)
		state := states[cur.pubKeyBytes]
		if state.visited {
			continue
		}
		state.visited = true

		if cur.pubKeyBytes == srcKey {
			break
		}

		for _, edge := range incoming[cur.pubKeyBytes] {
			amt := state.amount
			policy := edge.policy

			if policy.Disabled {
				continue
			}
			if amt < policy.MinHTLC {
				continue
			}
			if policy.MaxHTLC != 0 && amt > policy.MaxHTLC {
				continue
			}

			fee := edgeFee(policy, amt)
			nextAmt := amt + fee
			nextFee := state.fee + fee
			nextCLTV := state.cltv + uint32(policy.TimeLockDelta)

			if restrictions.MaxFeeMsat != 0 && nextFee > restrictions.MaxFeeMsat {
				feeLimited = true
				continue
			}
			if restrictions.MaxCLTVExpiry != 0 && nextCLTV > restrictions.MaxCLTVExpiry {
				cltvLimited = true
				continue
			}

			edgeCost := int64(fee) + cltvCostWeight*int64(policy.TimeLockDelta)
			candidateDist := state.dist + edgeCost

			next, ok := states[edge.toNode]
			if ok && next.visited {
				continue
			}
			if !ok || candidateDist < next.dist {
				e := edge
				states[edge.toNode] = &nodeState{
					dist:       candidateDist,
					amount:     nextAmt,
					fee:        nextFee,
					cltv:       nextCLTV,
					nextEdge:   &e,
					nextAmount: amt,
					nextCLTV:   state.cltv,
				}
				heap.Push(pq, &dijkstraNode{
					pubKeyBytes: edge.toNode,
					dist:        candidateDist,
				})
			}
		}
	}

	srcState, ok := states[srcKey]
	if !ok || !srcState.visited {
		log.Debugf("routing: no route found for %d msat from %x to %x",
			amtMsat, srcKey, dstKey)
		switch {
		case feeLimited:
			return nil, ErrFeeBudgetExceeded
		case cltvLimited:
			return nil, ErrCltvBudgetExceeded
		}
		return nil, ErrNoRouteFound
	}

	// Walk forward from source to destination collecting hops.
	var hops []*Hop
	cursor := srcKey
	for cursor != dstKey {
		state := states[cursor]
		if state == nil || state.nextEdge == nil {
			return nil, ErrNoRouteFound
		}
		hops = append(hops, &Hop{
			PubKeyBytes:  state.nextEdge.toNode,
			ChannelID:    state.nextEdge.channelID,
			AmtToForward: state.nextAmount,
			Fee:          edgeFee(state.nextEdge.policy, state.nextAmount),
			OutgoingCLTV: state.nextCLTV,
		})
		cursor = state.nextEdge.toNode
	}

	log.Debugf("routing: found %d-hop route, %d msat total fee", len(hops), srcState.fee)

	return &PaymentRoute{
		Hops:            hops,
		TotalAmountMsat: srcState.amount,
		TotalFeeMsat:    srcState.fee,
		TotalCLTVExpiry: srcState.cltv,
	}, nil
}

func edgeFee(policy *channeldb.ChannelEdgePolicy, amt lnwire.MilliSatoshi) lnwire.MilliSatoshi {
	proportional := lnwire.MilliSatoshi(uint64(amt) * uint64(policy.FeeProportionalMillionths) / 1_000_000)
	return policy.FeeBaseMSat + proportional
}

func pubKeyBytes(pub *btcec.PublicKey) [33]byte {
	var k [33]byte
	copy(k[:], pub.SerializeCompressed())
	return k
}
