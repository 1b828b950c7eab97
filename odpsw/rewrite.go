package odpsw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket/layers"
	"github.com/hkwi/godp/odp"
)

// ErrNoHeader is returned by a rewrite when the packet lacks the header it targets.
// Executors treat it as a no-op.
var ErrNoHeader = errors.New("header not present")

const (
	ethAddrEnd  = 12 // end of the ethernet address pair, start of the first type field
	vlanTagSize = 4
	mplsLseSize = 4
)

func (self *Packet) SetEthernet(src, dst net.HardwareAddr) error {
	if find(self.headers(), layers.LayerTypeEthernet) != 0 {
		return ErrNoHeader
	}
	data := self.writable()
	copy(data[0:6], dst)
	copy(data[6:12], src)
	return nil
}

// SetIPv4 rewrites the outermost ipv4 header, repairing the header checksum
// and the tcp or udp checksum that covers the addresses.
func (self *Packet) SetIPv4(src, dst net.IP, tos, ttl uint8) error {
	hs := self.headers()
	i := find(hs, layers.LayerTypeIPv4)
	if i < 0 {
		return ErrNoHeader
	}
	l4 := upper(hs, i)
	data := self.writable()
	h := data[hs[i].offset:]
	old := append([]byte(nil), h[:20]...)

	h[1] = tos
	h[8] = ttl
	copy(h[12:16], src.To4())
	copy(h[16:20], dst.To4())

	patchChecksum(h[10:12], old[0:10], h[0:10])
	patchChecksum(h[10:12], old[12:20], h[12:20])
	if l4 != nil {
		patchL4Checksum(data, *l4, old[12:20], h[12:20])
	}
	return nil
}

/*
SetIPv6 rewrites the outermost ipv6 header.

proto goes to the next header field only when the upper layer directly follows
the base header. With extension headers present, proto names the upper layer
protocol and the chain is left as it is.
*/
func (self *Packet) SetIPv6(proto uint8, src, dst net.IP, tclass uint8, label uint32, hlimit uint8) error {
	hs := self.headers()
	i := find(hs, layers.LayerTypeIPv6)
	if i < 0 {
		return ErrNoHeader
	}
	l4 := upper(hs, i)
	direct := i+1 >= len(hs) || !ipv6Extension(hs[i+1].layer)
	data := self.writable()
	h := data[hs[i].offset:]
	old := append([]byte(nil), h[:40]...)

	h[0] = h[0]&0xf0 | tclass>>4
	h[1] = tclass<<4 | uint8(label>>16)&0x0f
	binary.BigEndian.PutUint16(h[2:4], uint16(label))
	h[7] = hlimit
	copy(h[8:24], src.To16())
	copy(h[24:40], dst.To16())
	if direct {
		h[6] = proto
	}

	if l4 != nil {
		patchL4Checksum(data, *l4, old[8:40], h[8:40])
		if direct {
			patchL4Checksum(data, *l4, []byte{0, old[6]}, []byte{0, h[6]})
		}
	}
	return nil
}

func ipv6Extension(layer interface{}) bool {
	switch layer.(type) {
	case *layers.IPv6HopByHop, *layers.IPv6Routing, *layers.IPv6Fragment, *layers.IPv6Destination:
		return true
	}
	return false
}

// upper returns the transport header carried by the ip header hs[i], skipping
// ipv6 extensions. Non first ipv4 fragments carry none.
func upper(hs []header, i int) *header {
	for j := i + 1; j < len(hs); j++ {
		switch hs[j].layer.(type) {
		case *layers.TCP, *layers.UDP, *layers.ICMPv6:
			return &hs[j]
		}
		if !ipv6Extension(hs[j].layer) {
			return nil
		}
	}
	return nil
}

// patchL4Checksum repairs the checksum of the transport header h whose pseudo
// header words old became new.
func patchL4Checksum(data []byte, h header, old, new []byte) {
	field := data[h.offset:]
	switch h.layer.(type) {
	case *layers.TCP:
		patchChecksum(field[16:18], old, new)
	case *layers.UDP:
		patchUDPChecksum(field[6:8], old, new)
	case *layers.ICMPv6:
		patchChecksum(field[2:4], old, new)
	}
}

func (self *Packet) SetTCPPort(src, dst uint16) error {
	hs := self.headers()
	i := find(hs, layers.LayerTypeTCP)
	if i < 0 {
		return ErrNoHeader
	}
	self.setPorts(hs[i], src, dst)
	return nil
}

func (self *Packet) SetUDPPort(src, dst uint16) error {
	hs := self.headers()
	i := find(hs, layers.LayerTypeUDP)
	if i < 0 {
		return ErrNoHeader
	}
	self.setPorts(hs[i], src, dst)
	return nil
}

func (self *Packet) setPorts(h header, src, dst uint16) {
	data := self.writable()
	ports := data[h.offset : h.offset+4]
	old := append([]byte(nil), ports...)
	binary.BigEndian.PutUint16(ports[0:2], src)
	binary.BigEndian.PutUint16(ports[2:4], dst)
	patchL4Checksum(data, h, old, ports)
}

// SetMplsLse replaces the top label stack entry.
func (self *Packet) SetMplsLse(lse uint32) error {
	hs := self.headers()
	i := find(hs, layers.LayerTypeMPLS)
	if i < 0 {
		return ErrNoHeader
	}
	data := self.writable()
	binary.BigEndian.PutUint32(data[hs[i].offset:], lse)
	return nil
}

/*
PushVlan inserts an 802.1Q tag right after the ethernet addresses.

A zero tpid means 0x8100. The CFI bit of tci is the "tag present" marker of
flow keys, and is cleared in the inserted tag.
*/
func (self *Packet) PushVlan(tpid, tci uint16) error {
	if len(self.data) < ethAddrEnd+2 {
		return ErrNoHeader
	}
	if tpid == 0 {
		tpid = odp.ETH_TYPE_VLAN
	}
	tag := make([]byte, vlanTagSize)
	binary.BigEndian.PutUint16(tag[0:2], tpid)
	binary.BigEndian.PutUint16(tag[2:4], tci&^odp.VLAN_CFI)
	self.splice(ethAddrEnd, 0, tag)
	return nil
}

// PopVlan removes the outermost 802.1Q tag.
func (self *Packet) PopVlan() error {
	if len(self.data) < ethAddrEnd+vlanTagSize+2 || !vlanType(ethertypeAt(self.data, ethAddrEnd)) {
		return ErrNoHeader
	}
	self.splice(ethAddrEnd, vlanTagSize, nil)
	return nil
}

// PushMpls puts lse on top of the label stack, after any vlan tags, and sets the ethertype.
func (self *Packet) PushMpls(ethertype uint16, lse uint32) error {
	if !odp.EthTypeMpls(ethertype) {
		return fmt.Errorf("push_mpls with non mpls ethertype 0x%04x", ethertype)
	}
	off := l2TypeOffset(self.data)
	if off < 0 {
		return ErrNoHeader
	}
	entry := make([]byte, mplsLseSize)
	binary.BigEndian.PutUint32(entry, lse)
	self.splice(off+2, 0, entry)
	binary.BigEndian.PutUint16(self.data[off:], ethertype)
	return nil
}

// PopMpls removes the top label stack entry and sets the ethertype of the remaining packet.
func (self *Packet) PopMpls(ethertype uint16) error {
	off := l2TypeOffset(self.data)
	if off < 0 || !odp.EthTypeMpls(ethertypeAt(self.data, off)) || len(self.data) < off+2+mplsLseSize {
		return ErrNoHeader
	}
	self.splice(off+2, mplsLseSize, nil)
	binary.BigEndian.PutUint16(self.data[off:], ethertype)
	return nil
}

// l2TypeOffset returns the offset of the type field after the ethernet
// addresses and vlan tags, or -1 for a frame shorter than that.
func l2TypeOffset(data []byte) int {
	off := ethAddrEnd
	for len(data) >= off+vlanTagSize+2 && vlanType(ethertypeAt(data, off)) {
		off += vlanTagSize
	}
	if len(data) < off+2 {
		return -1
	}
	return off
}

func ethertypeAt(data []byte, off int) uint16 {
	return binary.BigEndian.Uint16(data[off:])
}

func vlanType(ethertype uint16) bool {
	return ethertype == odp.ETH_TYPE_VLAN || ethertype == odp.ETH_TYPE_VLAN_8021AD
}
