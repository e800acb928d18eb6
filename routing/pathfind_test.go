package routing

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lnmobile/lncore/channeldb"
	"github.com/lnmobile/lncore/lnwire"
)

// buildChain builds a graph of nodes[0] -> nodes[1] -> ... -> nodes[n-1],
// each hop a channel with the same fixed policy (1000 msat base fee, 1 ppm,
// CLTV delta 40) in the forward direction only.
func buildChain(t *testing.T, n int) (*channeldb.ChannelGraph, []*btcec.PublicKey) {
	t.Helper()

	g := channeldb.NewChannelGraph()
	nodes := make([]*btcec.PublicKey, n)
	for i := range nodes {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		nodes[i] = priv.PubKey()
		require.NoError(t, g.AddLightningNode(&channeldb.LightningNode{
			PubKey: nodes[i],
		}))
	}

	for i := 0; i < n-1; i++ {
		chanID := uint64(i + 1)
		require.NoError(t, g.AddChannelEdge(&channeldb.ChannelEdgeInfo{
			ChannelID: chanID,
			NodeKey1:  nodes[i],
			NodeKey2:  nodes[i+1],
			Capacity:  1_000_000,
		}))
		require.NoError(t, g.UpdateEdgePolicy(nodes[i], &channeldb.ChannelEdgePolicy{
			ChannelID:                 chanID,
			LastUpdate:                time.Unix(int64(1_700_000_000+i), 0),
			TimeLockDelta:             40,
			FeeBaseMSat:               1000,
			FeeProportionalMillionths: 1,
			MaxHTLC:                   500_000_000,
		}))
	}

	return g, nodes
}

func TestFindRouteSimpleChain(t *testing.T) {
	g, nodes := buildChain(t, 3)

	route, err := FindRoute(g, nodes[0], nodes[2], 100_000_000, 800_000,
		&Restrictions{FinalCLTVDelta: 9, MaxCLTVExpiry: 900_000, MaxFeeMsat: 10_000})
	require.NoError(t, err)
	require.Len(t, route.Hops, 2)
	require.Equal(t, uint64(1), route.Hops[0].ChannelID)
	require.Equal(t, uint64(2), route.Hops[1].ChannelID)

	// The final hop forwards exactly the destination amount.
	require.Equal(t, lnwire.MilliSatoshi(100_000_000), route.Hops[1].AmtToForward)
}

func TestFindRouteRejectsSelfPayment(t *testing.T) {
	g, nodes := buildChain(t, 2)

	_, err := FindRoute(g, nodes[0], nodes[0], 1000, 800_000, &Restrictions{})
	require.ErrorIs(t, err, ErrNoRouteFound)
}

func TestFindRouteUnknownNode(t *testing.T) {
	g, nodes := buildChain(t, 2)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	_, err = FindRoute(g, nodes[0], priv.PubKey(), 1000, 800_000, &Restrictions{})
	require.ErrorIs(t, err, ErrNodeUnknown)
}

func TestFindRouteFeeBudgetExceeded(t *testing.T) {
	g, nodes := buildChain(t, 4)

	_, err := FindRoute(g, nodes[0], nodes[3], 100_000_000, 800_000,
		&Restrictions{FinalCLTVDelta: 9, MaxFeeMsat: 1})
	require.ErrorIs(t, err, ErrFeeBudgetExceeded)
}
