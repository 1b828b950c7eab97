package odpsw

import (
	"errors"
	"math/rand/v2"
	"net"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/hkwi/godp"
	"github.com/hkwi/godp/odp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDatapath godp.Datapath = "dp0"

type recorder struct {
	ports   []uint32
	frames  [][]byte
	upcalls []*odp.ActionUserspace
	keys    []*odp.FlowKey
}

func (self *recorder) Output(dp godp.Datapath, pkt *Packet, port uint32) {
	self.ports = append(self.ports, port)
	self.frames = append(self.frames, append([]byte(nil), pkt.Data()...))
}

func (self *recorder) Userspace(dp godp.Datapath, pkt *Packet, key *odp.FlowKey, action *odp.ActionUserspace) {
	self.upcalls = append(self.upcalls, action)
	self.keys = append(self.keys, key)
}

func (self *recorder) executor() *Executor {
	return &Executor{
		Output:    self,
		Userspace: self,
	}
}

type countingRand struct {
	value uint32
	calls int
}

func (self *countingRand) Uint32() uint32 {
	self.calls++
	return self.value
}

func recoverPanic(f func()) (v interface{}) {
	defer func() {
		v = recover()
	}()
	f()
	return nil
}

func TestOutputOrder(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	rec := &recorder{}
	actions := odp.Actions{
		&odp.ActionOutput{Port: 2},
		&odp.ActionOutput{Port: 1},
		&odp.ActionOutput{Port: 2},
		&odp.ActionOutput{Port: 0xffffffff},
	}
	require.NoError(t, rec.executor().Execute(testDatapath, NewPacket(frame), nil, actions))
	assert.Equal(t, []uint32{2, 1, 2, 0xffffffff}, rec.ports)
	for _, f := range rec.frames {
		assert.Equal(t, frame, f)
	}
}

func TestOutputSeesRewrites(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	rec := &recorder{}
	actions := odp.Actions{
		&odp.ActionOutput{Port: 1},
		&odp.ActionPushVlan{Tpid: odp.ETH_TYPE_VLAN, Tci: 5},
		&odp.ActionOutput{Port: 2},
	}
	require.NoError(t, rec.executor().Execute(testDatapath, NewPacket(frame), nil, actions))
	require.Len(t, rec.frames, 2)
	assert.Len(t, rec.frames[0], len(frame))
	assert.Len(t, rec.frames[1], len(frame)+4)
}

func TestSetEthernet(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolTCP)
	src := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	dst := net.HardwareAddr{0x02, 0, 0, 0, 0, 2}
	rec := &recorder{}
	actions := odp.Actions{
		&odp.ActionSet{Key: &odp.KeyEthernet{Src: src, Dst: dst}},
		&odp.ActionOutput{Port: 1},
	}
	require.NoError(t, rec.executor().Execute(testDatapath, NewPacket(frame), nil, actions))
	require.Len(t, rec.frames, 1)
	out := rec.frames[0]
	require.Len(t, out, len(frame))
	assert.Equal(t, []byte(dst), out[0:6])
	assert.Equal(t, []byte(src), out[6:12])
	assert.Equal(t, frame[12:], out[12:])
}

func TestSetEthernetZeroUDPChecksum(t *testing.T) {
	frame := zeroUDPChecksumFrame(t)
	rec := &recorder{}
	actions := odp.Actions{
		&odp.ActionSet{Key: &odp.KeyEthernet{Src: macB, Dst: macA}},
		&odp.ActionPushVlan{Tpid: odp.ETH_TYPE_VLAN, Tci: 5},
		&odp.ActionPopVlan{},
		&odp.ActionOutput{Port: 1},
	}
	require.NoError(t, rec.executor().Execute(testDatapath, NewPacket(frame), nil, actions))
	require.Len(t, rec.frames, 1)
	out := rec.frames[0]
	assertUnchangedOutside(t, frame, out, [2]int{0, 12})
	assert.Equal(t, []byte{0, 0}, out[40:42])
}

func TestScenarioSetEthernetOutput(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	src, _ := net.ParseMAC("AA:AA:AA:AA:AA:AA")
	dst, _ := net.ParseMAC("BB:BB:BB:BB:BB:BB")
	rec := &recorder{}
	pkt := NewPacket(frame)
	actions := odp.Actions{
		&odp.ActionSet{Key: &odp.KeyEthernet{Src: src, Dst: dst}},
		&odp.ActionOutput{Port: 3},
	}
	require.NoError(t, Execute(testDatapath, pkt, nil, actions, rec, nil))
	assert.Equal(t, []uint32{3}, rec.ports)
	eth := pkt.Ethernet()
	require.NotNil(t, eth)
	assert.Equal(t, src, eth.SrcMAC)
	assert.Equal(t, dst, eth.DstMAC)
}

func TestScenarioSampleNever(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	count := 0
	output := OutputFunc(func(dp godp.Datapath, pkt *Packet, port uint32) {
		count++
	})
	actions := odp.Actions{
		odp.NewSample(0, &odp.ActionOutput{Port: 1}),
	}
	for i := 0; i < 10000; i++ {
		require.NoError(t, Execute(testDatapath, NewPacket(frame), nil, actions, output, nil))
	}
	assert.Equal(t, 0, count)
}

func TestSampleMax(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	rec := &recorder{}
	e := rec.executor()
	e.Rand = rand.New(rand.NewPCG(1, 2))
	actions := odp.Actions{
		odp.NewSample(0xffffffff, &odp.ActionOutput{Port: 1}),
	}
	const trials = 10000
	for i := 0; i < trials; i++ {
		require.NoError(t, e.Execute(testDatapath, NewPacket(frame), nil, actions))
	}
	assert.GreaterOrEqual(t, len(rec.ports), trials-1)
}

func TestSampleHalf(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	rec := &recorder{}
	e := rec.executor()
	e.Rand = rand.New(rand.NewPCG(3, 4))
	actions := odp.Actions{
		odp.NewSample(1<<31, &odp.ActionOutput{Port: 1}),
	}
	for i := 0; i < 10000; i++ {
		require.NoError(t, e.Execute(testDatapath, NewPacket(frame), nil, actions))
	}
	assert.InDelta(t, 5000, len(rec.ports), 500)
}

func TestSampleThreshold(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	for _, c := range []struct {
		probability uint32
		draw        uint32
		fired       bool
	}{
		{100, 99, true},
		{100, 100, false},
		{100, 101, false},
		{0, 0, false},
		{0xffffffff, 0xfffffffe, true},
		{0xffffffff, 0xffffffff, false},
	} {
		rec := &recorder{}
		e := rec.executor()
		e.Rand = &countingRand{value: c.draw}
		actions := odp.Actions{odp.NewSample(c.probability, &odp.ActionOutput{Port: 1})}
		require.NoError(t, e.Execute(testDatapath, NewPacket(frame), nil, actions))
		assert.Equal(t, c.fired, len(rec.ports) == 1, "probability=%d draw=%d", c.probability, c.draw)
	}
}

func TestSampleWithoutProbability(t *testing.T) {
	rec := &recorder{}
	e := rec.executor()
	r := &countingRand{}
	e.Rand = r
	actions := odp.Actions{
		&odp.ActionSample{Actions: odp.Actions{&odp.ActionOutput{Port: 4}}},
	}
	require.NoError(t, e.Execute(testDatapath, NewPacket(ipv4Frame(t, layers.IPProtocolUDP)), nil, actions))
	assert.Equal(t, []uint32{4}, rec.ports)
	assert.Equal(t, 0, r.calls)
}

func TestSampleOuterRejection(t *testing.T) {
	rec := &recorder{}
	e := rec.executor()
	r := &countingRand{value: 0x80000000}
	e.Rand = r
	actions := odp.Actions{
		odp.NewSample(0x10, odp.NewSample(0xffffffff, &odp.ActionOutput{Port: 1})),
		&odp.ActionOutput{Port: 2},
	}
	require.NoError(t, e.Execute(testDatapath, NewPacket(ipv4Frame(t, layers.IPProtocolUDP)), nil, actions))
	assert.Equal(t, []uint32{2}, rec.ports)
	assert.Equal(t, 1, r.calls)
}

func TestSampleSharesPacket(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	rec := &recorder{}
	actions := odp.Actions{
		&odp.ActionSample{Actions: odp.Actions{&odp.ActionPushVlan{Tci: 7}}},
		&odp.ActionOutput{Port: 1},
	}
	require.NoError(t, rec.executor().Execute(testDatapath, NewPacket(frame), nil, actions))
	require.Len(t, rec.frames, 1)
	assert.Len(t, rec.frames[0], len(frame)+4)
}

func nestedSamples(n int, leaf odp.Action) odp.Action {
	a := leaf
	for i := 0; i < n; i++ {
		a = &odp.ActionSample{Actions: odp.Actions{a}}
	}
	return a
}

func TestSampleDepth(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)

	rec := &recorder{}
	m := NewMetrics()
	e := rec.executor()
	e.Metrics = m
	actions := odp.Actions{nestedSamples(DefaultMaxSampleDepth, &odp.ActionOutput{Port: 1})}
	require.NoError(t, e.Execute(testDatapath, NewPacket(frame), nil, actions))
	assert.Equal(t, []uint32{1}, rec.ports)

	actions = odp.Actions{nestedSamples(DefaultMaxSampleDepth+1, &odp.ActionOutput{Port: 1})}
	err := e.Execute(testDatapath, NewPacket(frame), nil, actions)
	assert.True(t, errors.Is(err, ErrSampleDepth))
	assert.Equal(t, []uint32{1}, rec.ports)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DepthExceeded))

	e.MaxSampleDepth = -1
	actions = odp.Actions{nestedSamples(100, &odp.ActionOutput{Port: 1})}
	require.NoError(t, e.Execute(testDatapath, NewPacket(frame), nil, actions))
	assert.Equal(t, []uint32{1, 1}, rec.ports)
}

func TestSampleDepthKeepsSideEffects(t *testing.T) {
	rec := &recorder{}
	e := rec.executor()
	e.MaxSampleDepth = 2
	actions := odp.Actions{
		&odp.ActionSample{Actions: odp.Actions{
			&odp.ActionOutput{Port: 1},
			&odp.ActionSample{Actions: odp.Actions{
				&odp.ActionOutput{Port: 2},
				&odp.ActionSample{Actions: odp.Actions{
					&odp.ActionOutput{Port: 3},
				}},
				&odp.ActionOutput{Port: 4},
			}},
		}},
		&odp.ActionOutput{Port: 5},
	}
	err := e.Execute(testDatapath, NewPacket(ipv4Frame(t, layers.IPProtocolUDP)), nil, actions)
	assert.True(t, errors.Is(err, ErrSampleDepth))
	assert.Equal(t, []uint32{1, 2}, rec.ports)
}

func TestUserspace(t *testing.T) {
	rec := &recorder{}
	key := &odp.FlowKey{InPort: 3}
	upcall := &odp.ActionUserspace{Pid: 7, Userdata: []byte{1, 2}}
	actions := odp.Actions{upcall, &odp.ActionOutput{Port: 1}}
	require.NoError(t, rec.executor().Execute(testDatapath, NewPacket(ipv4Frame(t, layers.IPProtocolUDP)), key, actions))
	assert.Equal(t, []*odp.ActionUserspace{upcall}, rec.upcalls)
	assert.Same(t, key, rec.keys[0])
	assert.Equal(t, []uint32{1}, rec.ports)
}

func TestNoopKeys(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	rec := &recorder{}
	actions := odp.Actions{
		&odp.ActionSet{Key: &odp.KeyPriority{Priority: 3}},
		&odp.ActionSet{Key: &odp.KeySkbMark{Mark: 9}},
		&odp.ActionSet{Key: &odp.KeyTunnel{Data: []byte{1, 2, 3, 4}}},
		&odp.ActionOutput{Port: 1},
	}
	require.NoError(t, rec.executor().Execute(testDatapath, NewPacket(frame), nil, actions))
	assert.Equal(t, [][]byte{frame}, rec.frames)
}

func TestMissingHeaderIsNoop(t *testing.T) {
	frame := ipv6Frame(t)
	rec := &recorder{}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	e := rec.executor()
	e.Log = logger
	e.Metrics = NewMetrics()
	actions := odp.Actions{
		&odp.ActionSet{Key: &odp.KeyIPv4{Src: ip4A, Dst: ip4B, Ttl: 1}},
		&odp.ActionSet{Key: &odp.KeyUDP{Src: 1, Dst: 2}},
		&odp.ActionPopVlan{},
		&odp.ActionOutput{Port: 1},
	}
	require.NoError(t, e.Execute(testDatapath, NewPacket(frame), nil, actions))
	assert.Equal(t, [][]byte{frame}, rec.frames)
	assert.Len(t, hook.AllEntries(), 3)
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Equal(t, 0, testutil.CollectAndCount(e.Metrics.RewriteErrors))
}

func TestRewriteFailureContinues(t *testing.T) {
	rec := &recorder{}
	logger, hook := logtest.NewNullLogger()
	e := rec.executor()
	e.Log = logger
	e.Metrics = NewMetrics()
	actions := odp.Actions{
		&odp.ActionPushMpls{Lse: 1, Ethertype: odp.ETH_TYPE_IP},
		&odp.ActionOutput{Port: 1},
	}
	require.NoError(t, e.Execute(testDatapath, NewPacket(ipv4Frame(t, layers.IPProtocolUDP)), nil, actions))
	assert.Equal(t, []uint32{1}, rec.ports)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics.RewriteErrors.WithLabelValues("push_mpls")))
}

func TestContractViolation(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	output := odp.Actions{&odp.ActionOutput{Port: 1}}
	upcall := odp.Actions{&odp.ActionUserspace{Pid: 1}}
	key := &odp.FlowKey{}
	rec := &recorder{}

	for name, f := range map[string]func(){
		"no output handler": func() {
			e := &Executor{}
			e.Execute(testDatapath, NewPacket(frame), nil, output)
		},
		"no datapath": func() {
			rec.executor().Execute(nil, NewPacket(frame), nil, output)
		},
		"no userspace handler": func() {
			e := &Executor{Output: rec}
			e.Execute(testDatapath, NewPacket(frame), key, upcall)
		},
		"no flow key": func() {
			rec.executor().Execute(testDatapath, NewPacket(frame), nil, upcall)
		},
		"no packet": func() {
			rec.executor().Execute(testDatapath, nil, nil, nil)
		},
		"nested output handler": func() {
			e := &Executor{}
			e.Execute(testDatapath, NewPacket(frame), nil, odp.Actions{&odp.ActionSample{Actions: output}})
		},
	} {
		v := recoverPanic(f)
		assert.IsType(t, godp.ContractError{}, v, name)
	}
	assert.Empty(t, rec.ports)
}

func TestInvariantViolation(t *testing.T) {
	frame := ipv4Frame(t, layers.IPProtocolUDP)
	rec := &recorder{}
	r := &countingRand{}

	for name, actions := range map[string]odp.Actions{
		"unknown action":  {&odp.ActionUnknown{Type: 42}},
		"unspec action":   {&odp.ActionUnknown{Type: odp.OVS_ACTION_ATTR_UNSPEC}},
		"nil action":      {nil},
		"in_port key":     {&odp.ActionSet{Key: &odp.KeyInPort{Port: 1}}},
		"vlan key":        {&odp.ActionSet{Key: &odp.KeyVlan{Tci: 1}}},
		"ethertype key":   {&odp.ActionSet{Key: &odp.KeyEthertype{Ethertype: 1}}},
		"unknown key":     {&odp.ActionSet{Key: &odp.KeyUnknown{Type: 11}}},
		"nested unknown":  {&odp.ActionSample{Actions: odp.Actions{&odp.ActionUnknown{Type: 42}}}},
		"sample reserved": {&odp.ActionSample{Probability: 1, HasProbability: true, Reserved: []uint16{3}}},
	} {
		e := rec.executor()
		e.Rand = r
		v := recoverPanic(func() {
			e.Execute(testDatapath, NewPacket(frame), nil, append(actions, &odp.ActionOutput{Port: 1}))
		})
		assert.IsType(t, godp.InvariantError{}, v, name)
	}
	assert.Empty(t, rec.ports)
	assert.Equal(t, 0, r.calls)
}

func TestMetrics(t *testing.T) {
	rec := &recorder{}
	e := rec.executor()
	e.Metrics = NewMetrics()
	e.Rand = &countingRand{value: 10}
	actions := odp.Actions{
		&odp.ActionOutput{Port: 1},
		odp.NewSample(5, &odp.ActionOutput{Port: 2}),
		odp.NewSample(50, &odp.ActionUserspace{Pid: 1}),
	}
	require.NoError(t, e.Execute(testDatapath, NewPacket(ipv4Frame(t, layers.IPProtocolUDP)), &odp.FlowKey{}, actions))

	m := e.Metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("output")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Actions.WithLabelValues("sample")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("userspace")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Samples.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Samples.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("userspace")))

	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}
