package odpsw

import (
	"net"

	"github.com/google/gopacket/layers"
	"github.com/hkwi/godp/odp"
)

// ipv4 fragment kinds of flow keys
const (
	fragNone  = 0
	fragFirst = 1
	fragLater = 2
)

// ExtractFlow builds a flow key of the outermost headers of pkt.
func ExtractFlow(pkt *Packet, inPort uint32) *odp.FlowKey {
	key := &odp.FlowKey{
		InPort: inPort,
	}
	var l4proto uint8
	for _, layer := range pkt.Layers() {
		switch l := layer.(type) {
		case *layers.Ethernet:
			if key.Ethernet == nil {
				key.Ethernet = &odp.KeyEthernet{
					Src: append(net.HardwareAddr(nil), l.SrcMAC...),
					Dst: append(net.HardwareAddr(nil), l.DstMAC...),
				}
				key.Ethertype = uint16(l.EthernetType)
			}
		case *layers.Dot1Q:
			if key.Vlan == nil && key.MPLS == nil && key.IPv4 == nil && key.IPv6 == nil {
				key.Vlan = &odp.KeyVlan{
					Tci: uint16(l.Priority)<<odp.VLAN_PCP_SHIFT | odp.VLAN_CFI | l.VLANIdentifier&odp.VLAN_VID_MASK,
				}
				key.Ethertype = uint16(l.Type)
			}
		case *layers.MPLS:
			if key.MPLS == nil {
				key.MPLS = &odp.KeyMPLS{
					Lse: odp.MplsLse(l.Label, l.TrafficClass, l.StackBottom, l.TTL),
				}
			}
		case *layers.IPv4:
			if key.IPv4 == nil && key.IPv6 == nil {
				frag := uint8(fragNone)
				if l.FragOffset != 0 {
					frag = fragLater
				} else if l.Flags&layers.IPv4MoreFragments != 0 {
					frag = fragFirst
				}
				key.IPv4 = &odp.KeyIPv4{
					Src:   append(net.IP(nil), l.SrcIP.To4()...),
					Dst:   append(net.IP(nil), l.DstIP.To4()...),
					Proto: uint8(l.Protocol),
					Tos:   l.TOS,
					Ttl:   l.TTL,
					Frag:  frag,
				}
			}
		case *layers.IPv6:
			if key.IPv4 == nil && key.IPv6 == nil {
				key.IPv6 = &odp.KeyIPv6{
					Src:    append(net.IP(nil), l.SrcIP.To16()...),
					Dst:    append(net.IP(nil), l.DstIP.To16()...),
					Label:  l.FlowLabel,
					Proto:  uint8(l.NextHeader),
					Tclass: l.TrafficClass,
					Hlimit: l.HopLimit,
				}
			}
		case *layers.IPv6Fragment:
			if key.IPv6 != nil && key.IPv6.Frag == fragNone {
				if l.FragmentOffset != 0 {
					key.IPv6.Frag = fragLater
				} else {
					key.IPv6.Frag = fragFirst
				}
			}
		case *layers.TCP:
			if key.TCP == nil && key.UDP == nil && l4proto == 0 {
				key.TCP = &odp.KeyTCP{Src: uint16(l.SrcPort), Dst: uint16(l.DstPort)}
				l4proto = uint8(layers.IPProtocolTCP)
			}
		case *layers.UDP:
			if key.TCP == nil && key.UDP == nil && l4proto == 0 {
				key.UDP = &odp.KeyUDP{Src: uint16(l.SrcPort), Dst: uint16(l.DstPort)}
				l4proto = uint8(layers.IPProtocolUDP)
			}
		case *layers.ICMPv6:
			if l4proto == 0 {
				l4proto = uint8(layers.IPProtocolICMPv6)
			}
		}
	}
	if key.IPv6 != nil && l4proto != 0 {
		key.IPv6.Proto = l4proto
	}
	return key
}
