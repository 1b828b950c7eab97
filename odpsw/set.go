package odpsw

import (
	"github.com/hkwi/godp"
	"github.com/hkwi/godp/odp"
)

// set rewrites the header that key describes.
func (self *Executor) set(pkt *Packet, key odp.Key) error {
	switch k := key.(type) {
	default:
		godp.NotReached("unexpected set field %v", key)
	case *odp.KeyPriority, *odp.KeySkbMark, *odp.KeyTunnel:
		// packet metadata, not part of frame bytes
	case *odp.KeyEthernet:
		return pkt.SetEthernet(k.Src, k.Dst)
	case *odp.KeyIPv4:
		return pkt.SetIPv4(k.Src, k.Dst, k.Tos, k.Ttl)
	case *odp.KeyIPv6:
		return pkt.SetIPv6(k.Proto, k.Src, k.Dst, k.Tclass, k.Label, k.Hlimit)
	case *odp.KeyTCP:
		return pkt.SetTCPPort(k.Src, k.Dst)
	case *odp.KeyUDP:
		return pkt.SetUDPPort(k.Src, k.Dst)
	case *odp.KeyMPLS:
		return pkt.SetMplsLse(k.Lse)
	}
	return nil
}
