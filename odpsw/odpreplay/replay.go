package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/hkwi/godp"
	"github.com/hkwi/godp/odp"
	"github.com/hkwi/godp/odpsw"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const snaplen = 65536

type replayConfig struct {
	In             string
	OutDir         string
	Actions        odp.Actions
	InPort         uint32
	Workers        int
	Seed           uint64
	MaxSampleDepth int
	MetricsFile    string
}

type replayStats struct {
	Packets int
	Failed  int
	Upcalls int
	Outputs map[uint32]int
}

func (self replayStats) String() string {
	var ports []uint32
	for port := range self.Outputs {
		ports = append(ports, port)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })

	var seq []string
	for _, port := range ports {
		seq = append(seq, fmt.Sprintf("port-%d=%d", port, self.Outputs[port]))
	}
	return fmt.Sprintf("packets=%d failed=%d upcalls=%d outputs=[%s]",
		self.Packets, self.Failed, self.Upcalls, strings.Join(seq, ","))
}

type replayer struct {
	cfg      replayConfig
	log      logrus.FieldLogger
	executor odpsw.Executor
	packets  prometheus.Counter
	failures prometheus.Counter

	writers map[string]*pcapgo.Writer
	files   []*os.File
	stats   replayStats
	err     error
}

// replay runs cfg.Actions over every packet of cfg.In. A packet whose execution
// fails is counted and skipped, and the first such error is returned at the end.
func replay(cfg replayConfig, log logrus.FieldLogger) (*replayStats, error) {
	in, err := os.Open(cfg.In)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	reader, err := pcapgo.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.In, err)
	}
	if reader.LinkType() != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("%s: link type %v is not ethernet", cfg.In, reader.LinkType())
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := odpsw.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	self := &replayer{
		cfg: cfg,
		log: log,
		executor: odpsw.Executor{
			Output:         odpsw.OutputFunc(deliverOutput),
			Userspace:      odpsw.UserspaceFunc(deliverUserspace),
			MaxSampleDepth: cfg.MaxSampleDepth,
			Log:            log,
			Metrics:        metrics,
		},
		packets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "odpreplay",
			Name:      "packets_total",
			Help:      "Number of packets read from the input.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "odpreplay",
			Name:      "failures_total",
			Help:      "Number of packets whose execution failed.",
		}),
		writers: make(map[string]*pcapgo.Writer),
		stats: replayStats{
			Outputs: make(map[uint32]int),
		},
	}
	reg.MustRegister(self.packets, self.failures)

	log.WithFields(logrus.Fields{
		"in":      cfg.In,
		"actions": cfg.Actions.String(),
		"workers": cfg.Workers,
	}).Info("replay started")

	works := make(chan odpsw.MapReducable)
	var readErr error
	go func() {
		defer close(works)
		for index := 0; ; index++ {
			data, ci, err := reader.ReadPacketData()
			if err == io.EOF {
				return
			} else if err != nil {
				readErr = err
				return
			}
			works <- &replayWork{
				replayer: self,
				index:    index,
				data:     data,
				ci:       ci,
			}
		}
	}()
	odpsw.MapReduce(works, cfg.Workers)
	self.close()

	if readErr != nil && self.err == nil {
		self.err = fmt.Errorf("%s: %w", cfg.In, readErr)
	}
	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil && self.err == nil {
			self.err = err
		}
	}
	log.WithField("stats", self.stats.String()).Info("replay finished")
	return &self.stats, self.err
}

// writer opens the named pcap file on first use.
func (self *replayer) writer(name string) (*pcapgo.Writer, error) {
	if w, ok := self.writers[name]; ok {
		return w, nil
	}
	f, err := os.Create(filepath.Join(self.cfg.OutDir, name))
	if err != nil {
		return nil, err
	}
	self.files = append(self.files, f)
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snaplen, layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	self.writers[name] = w
	return w, nil
}

func (self *replayer) write(name string, ci gopacket.CaptureInfo, data []byte) error {
	w, err := self.writer(name)
	if err != nil {
		return err
	}
	ci.CaptureLength = len(data)
	ci.Length = len(data)
	return w.WritePacket(ci, data)
}

func (self *replayer) close() {
	for _, f := range self.files {
		if err := f.Close(); err != nil && self.err == nil {
			self.err = err
		}
	}
}

type replayWork struct {
	*replayer
	index int
	data  []byte
	ci    gopacket.CaptureInfo
}

// Map executes the actions. The capture is passed as datapath handle, so
// deliveries land in the capture of this packet.
func (self *replayWork) Map() odpsw.Reducable {
	c := &capture{
		replayer: self.replayer,
		index:    self.index,
		ci:       self.ci,
	}
	executor := self.executor
	if self.cfg.Seed != 0 {
		executor.Rand = rand.New(rand.NewPCG(self.cfg.Seed, uint64(self.index)))
	}
	pkt := odpsw.NewPacket(self.data)
	key := odpsw.ExtractFlow(pkt, self.cfg.InPort)

	func() {
		defer func() {
			if r := recover(); r != nil {
				switch e := r.(type) {
				case godp.InvariantError:
					c.err = e.Err
				case godp.ContractError:
					c.err = e.Err
				default:
					panic(r)
				}
			}
		}()
		c.err = executor.Execute(c, pkt, key, self.cfg.Actions)
	}()
	return c
}

type delivery struct {
	port uint32
	data []byte
}

type capture struct {
	*replayer
	index   int
	ci      gopacket.CaptureInfo
	outputs []delivery
	upcalls [][]byte
	err     error
}

func deliverOutput(dp godp.Datapath, pkt *odpsw.Packet, port uint32) {
	c := dp.(*capture)
	c.outputs = append(c.outputs, delivery{port, append([]byte(nil), pkt.Data()...)})
}

func deliverUserspace(dp godp.Datapath, pkt *odpsw.Packet, key *odp.FlowKey, action *odp.ActionUserspace) {
	c := dp.(*capture)
	c.log.WithFields(logrus.Fields{
		"packet": c.index,
		"pid":    action.Pid,
		"key":    key.String(),
	}).Debug("upcall")
	c.upcalls = append(c.upcalls, append([]byte(nil), pkt.Data()...))
}

// Reduce writes the deliveries of one packet, running in input order.
func (self *capture) Reduce() {
	self.packets.Inc()
	self.stats.Packets++
	if self.err != nil {
		self.failures.Inc()
		self.stats.Failed++
		self.log.WithError(self.err).WithField("packet", self.index).Warn("execution failed")
		if self.replayer.err == nil {
			self.replayer.err = fmt.Errorf("packet %d: %w", self.index, self.err)
		}
	}
	for _, d := range self.outputs {
		self.stats.Outputs[d.port]++
		self.record(self.write(fmt.Sprintf("port-%d.pcap", d.port), self.ci, d.data))
	}
	for _, data := range self.upcalls {
		self.stats.Upcalls++
		self.record(self.write("upcall.pcap", self.ci, data))
	}
}

func (self *capture) record(err error) {
	if err != nil && self.replayer.err == nil {
		self.replayer.err = err
	}
}
