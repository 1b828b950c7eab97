package odpsw

import (
	"fmt"

	"github.com/hkwi/godp"
	"github.com/hkwi/godp/odp"
)

/*
sample runs the nested actions when a uniform draw is below the probability.

Probability is a fraction of 2^32, so 0 never fires and 0xffffffff misses one
draw in 2^32. A sample without probability always fires. The nested actions
share pkt with the enclosing list, so their rewrites stay visible afterwards.
*/
func (self *Executor) sample(dp godp.Datapath, pkt *Packet, key *odp.FlowKey, a *odp.ActionSample, depth int) error {
	if len(a.Reserved) != 0 {
		godp.NotReached("unexpected sample attribute %d", a.Reserved[0])
	}
	if a.HasProbability && self.rand().Uint32() >= a.Probability {
		self.Metrics.sampled(false)
		return nil
	}
	self.Metrics.sampled(true)

	if limit := self.maxSampleDepth(); limit >= 0 && depth >= limit {
		self.Metrics.depthExceeded()
		return fmt.Errorf("%w: limit %d", ErrSampleDepth, limit)
	}
	return self.execute(dp, pkt, key, a.Actions, depth+1)
}
