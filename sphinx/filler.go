package sphinx

import "github.com/lnmobile/lncore/lncrypto"

// fillerScratchSize bounds the simulated buffer used to precompute filler.
// Peeling extends a received 1300-byte layer to 2600 bytes to recover the
// tail entropy the next hop expects (see peel.go); filler generation must
// simulate that same extension so the two agree.
const fillerScratchSize = 2 * HopPayloadsSize

// generateFiller precomputes the tail bytes that will be visible to each
// hop, other than the last, after it peels its own layer off the packet.
// Without this, the final hop's peeling (and every hop inward of it) would
// expose an all-zero tail, letting any hop on the path learn how many more
// hops remain by the length of the non-zero prefix.
//
// It simulates, in hop order, the same left-shift-and-XOR-with-rho
// transformation that peeling performs, over an all-zero buffer, and
// returns the bytes that land beyond the real 1300-byte window after
// processing every hop but the last. Splicing this into the tail of the
// buffer at the last hop's construction step (construct.go) is what makes
// the two sides agree.
func generateFiller(hopSizes []int, rhoKeys [][32]byte) []byte {
	buf := make([]byte, fillerScratchSize)

	total := 0
	for i := 0; i < len(hopSizes)-1; i++ {
		shift := hopSizes[i]
		total += shift

		stream, err := lncrypto.ChaCha20Stream(rhoKeys[i], fillerScratchSize)
		if err != nil {
			panic(err)
		}

		// Left-shift buf by shift, zero-filling the newly exposed
		// tail, then XOR the whole buffer with this hop's stream.
		copy(buf, buf[shift:])
		for j := fillerScratchSize - shift; j < fillerScratchSize; j++ {
			buf[j] = 0
		}
		for j := range buf {
			buf[j] ^= stream[j]
		}
	}

	if total == 0 {
		return nil
	}
	return append([]byte(nil), buf[fillerScratchSize-total:]...)
}
