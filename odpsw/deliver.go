package odpsw

import (
	"math/rand/v2"

	"github.com/hkwi/godp"
	"github.com/hkwi/godp/odp"
)

// Output delivers a packet to a datapath port. The packet keeps being
// rewritten by the actions that follow, so an implementation that holds on to
// it should Clone() it.
type Output interface {
	Output(dp godp.Datapath, pkt *Packet, port uint32)
}

// Userspace delivers a packet and its flow key to a userspace listener.
type Userspace interface {
	Userspace(dp godp.Datapath, pkt *Packet, key *odp.FlowKey, action *odp.ActionUserspace)
}

type OutputFunc func(dp godp.Datapath, pkt *Packet, port uint32)

func (f OutputFunc) Output(dp godp.Datapath, pkt *Packet, port uint32) {
	f(dp, pkt, port)
}

type UserspaceFunc func(dp godp.Datapath, pkt *Packet, key *odp.FlowKey, action *odp.ActionUserspace)

func (f UserspaceFunc) Userspace(dp godp.Datapath, pkt *Packet, key *odp.FlowKey, action *odp.ActionUserspace) {
	f(dp, pkt, key, action)
}

// Rand draws the uniform 32 bit values compared against sample probabilities.
// *rand.Rand of math/rand/v2 satisfies it.
type Rand interface {
	Uint32() uint32
}

type globalRand struct{}

func (globalRand) Uint32() uint32 {
	return rand.Uint32()
}
