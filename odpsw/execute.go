/*
Package odpsw executes openvswitch datapath actions on packets.

The switch half of a datapath: flow lookup is done elsewhere, and an action
list decoded by package odp is applied here to one packet at a time. Packets
leave through the Output and Userspace collaborators given by the embedder.
*/
package odpsw

import (
	"errors"

	"github.com/hkwi/godp"
	"github.com/hkwi/godp/odp"
	"github.com/sirupsen/logrus"
)

// DefaultMaxSampleDepth is the sample nesting limit of a zero Executor.
const DefaultMaxSampleDepth = 16

// ErrSampleDepth is wrapped by the error of an execution stopped at the sample nesting limit.
var ErrSampleDepth = errors.New("sample nesting too deep")

var defaultLog = logrus.WithField("component", "odpsw")

/*
Executor applies a decoded action list to one packet.

Actions run in list order. Output and userspace actions hand the packet to
the delivery collaborators, header rewrites mutate the packet in place, and a
sample action runs its nested list with the configured probability.

A malformed program is a caller bug: missing collaborators panic with
godp.ContractError, and an action or set key kind that cannot be executed
panics with godp.InvariantError. A rewrite that fails is logged and counted,
and execution goes on with the next action.
*/
type Executor struct {
	Output    Output
	Userspace Userspace
	Rand      Rand // defaults to math/rand/v2 global source
	// MaxSampleDepth limits sample nesting. 0 means DefaultMaxSampleDepth, and negative means unlimited.
	MaxSampleDepth int
	Log            logrus.FieldLogger
	Metrics        *Metrics
}

// Execute runs actions with an Executor of default settings.
func Execute(dp godp.Datapath, pkt *Packet, key *odp.FlowKey, actions odp.Actions, output Output, userspace Userspace) error {
	e := Executor{
		Output:    output,
		Userspace: userspace,
	}
	return e.Execute(dp, pkt, key, actions)
}

// Execute runs actions on pkt. The only error is a wrapped ErrSampleDepth.
func (self *Executor) Execute(dp godp.Datapath, pkt *Packet, key *odp.FlowKey, actions odp.Actions) error {
	godp.Assert(pkt != nil, "packet is required")
	return self.execute(dp, pkt, key, actions, 0)
}

func (self *Executor) execute(dp godp.Datapath, pkt *Packet, key *odp.FlowKey, actions odp.Actions, depth int) error {
	for _, action := range actions {
		if action == nil {
			godp.NotReached("nil action in list")
		}
		self.Metrics.action(odp.ActionName(action.GetType()))

		switch a := action.(type) {
		default:
			godp.NotReached("unexpected action %v", action)
		case *odp.ActionOutput:
			godp.Assert(dp != nil, "output without datapath")
			godp.Assert(self.Output != nil, "output without output handler")
			self.Output.Output(dp, pkt, a.Port)
			self.Metrics.delivered("output")
		case *odp.ActionUserspace:
			godp.Assert(dp != nil, "userspace without datapath")
			godp.Assert(key != nil, "userspace without flow key")
			godp.Assert(self.Userspace != nil, "userspace without userspace handler")
			self.Userspace.Userspace(dp, pkt, key, a)
			self.Metrics.delivered("userspace")
		case *odp.ActionSet:
			self.rewritten(action, self.set(pkt, a.Key))
		case *odp.ActionPushVlan:
			self.rewritten(action, pkt.PushVlan(a.Tpid, a.Tci))
		case *odp.ActionPopVlan:
			self.rewritten(action, pkt.PopVlan())
		case *odp.ActionPushMpls:
			self.rewritten(action, pkt.PushMpls(a.Ethertype, a.Lse))
		case *odp.ActionPopMpls:
			self.rewritten(action, pkt.PopMpls(a.Ethertype))
		case *odp.ActionSample:
			if err := self.sample(dp, pkt, key, a, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

func (self *Executor) rewritten(action odp.Action, err error) {
	if err == nil {
		return
	}
	log := self.log().WithField("action", action.String())
	if errors.Is(err, ErrNoHeader) {
		log.Debug("skipped rewrite, header not present")
		return
	}
	log.WithError(err).Warn("rewrite failed")
	self.Metrics.rewriteFailed(odp.ActionName(action.GetType()))
}

func (self *Executor) log() logrus.FieldLogger {
	if self.Log != nil {
		return self.Log
	}
	return defaultLog
}

func (self *Executor) rand() Rand {
	if self.Rand != nil {
		return self.Rand
	}
	return globalRand{}
}

func (self *Executor) maxSampleDepth() int {
	if self.MaxSampleDepth == 0 {
		return DefaultMaxSampleDepth
	}
	return self.MaxSampleDepth
}
