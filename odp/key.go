package odp

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/vishvananda/netlink/nl"
)

// Key is one flow key attribute. Inside a SET action it names the header field to rewrite.
type Key interface {
	GetType() uint16
	MarshalBinary() ([]byte, error)
	String() string
}

type KeyEthernet struct {
	Src net.HardwareAddr
	Dst net.HardwareAddr
}

func (obj *KeyEthernet) GetType() uint16 {
	return OVS_KEY_ATTR_ETHERNET
}

func (obj *KeyEthernet) MarshalBinary() ([]byte, error) {
	if len(obj.Src) != 6 || len(obj.Dst) != 6 {
		return nil, fmt.Errorf("eth key needs 6 byte addresses")
	}
	data := make([]byte, 12)
	copy(data[0:6], obj.Src)
	copy(data[6:12], obj.Dst)
	return serializeAttr(OVS_KEY_ATTR_ETHERNET, data), nil
}

func (obj *KeyEthernet) UnmarshalBinary(data []byte) error {
	if err := checkLen("eth", data, 12); err != nil {
		return err
	}
	obj.Src = append(net.HardwareAddr(nil), data[0:6]...)
	obj.Dst = append(net.HardwareAddr(nil), data[6:12]...)
	return nil
}

type KeyIPv4 struct {
	Src   net.IP
	Dst   net.IP
	Proto uint8
	Tos   uint8
	Ttl   uint8
	Frag  uint8
}

func (obj *KeyIPv4) GetType() uint16 {
	return OVS_KEY_ATTR_IPV4
}

func (obj *KeyIPv4) MarshalBinary() ([]byte, error) {
	src := obj.Src.To4()
	dst := obj.Dst.To4()
	if src == nil || dst == nil {
		return nil, fmt.Errorf("ipv4 key needs ipv4 addresses")
	}
	data := make([]byte, 12)
	copy(data[0:4], src)
	copy(data[4:8], dst)
	data[8] = obj.Proto
	data[9] = obj.Tos
	data[10] = obj.Ttl
	data[11] = obj.Frag
	return serializeAttr(OVS_KEY_ATTR_IPV4, data), nil
}

func (obj *KeyIPv4) UnmarshalBinary(data []byte) error {
	if err := checkLen("ipv4", data, 12); err != nil {
		return err
	}
	obj.Src = net.IPv4(data[0], data[1], data[2], data[3]).To4()
	obj.Dst = net.IPv4(data[4], data[5], data[6], data[7]).To4()
	obj.Proto = data[8]
	obj.Tos = data[9]
	obj.Ttl = data[10]
	obj.Frag = data[11]
	return nil
}

type KeyIPv6 struct {
	Src    net.IP
	Dst    net.IP
	Label  uint32
	Proto  uint8
	Tclass uint8
	Hlimit uint8
	Frag   uint8
}

func (obj *KeyIPv6) GetType() uint16 {
	return OVS_KEY_ATTR_IPV6
}

func (obj *KeyIPv6) MarshalBinary() ([]byte, error) {
	src := obj.Src.To16()
	dst := obj.Dst.To16()
	if src == nil || dst == nil {
		return nil, fmt.Errorf("ipv6 key needs ipv6 addresses")
	}
	data := make([]byte, 40)
	copy(data[0:16], src)
	copy(data[16:32], dst)
	binary.BigEndian.PutUint32(data[32:36], obj.Label)
	data[36] = obj.Proto
	data[37] = obj.Tclass
	data[38] = obj.Hlimit
	data[39] = obj.Frag
	return serializeAttr(OVS_KEY_ATTR_IPV6, data), nil
}

func (obj *KeyIPv6) UnmarshalBinary(data []byte) error {
	if err := checkLen("ipv6", data, 40); err != nil {
		return err
	}
	obj.Src = append(net.IP(nil), data[0:16]...)
	obj.Dst = append(net.IP(nil), data[16:32]...)
	obj.Label = binary.BigEndian.Uint32(data[32:36])
	obj.Proto = data[36]
	obj.Tclass = data[37]
	obj.Hlimit = data[38]
	obj.Frag = data[39]
	return nil
}

// keyPorts is the common layout of the tcp and udp keys.
type keyPorts struct {
	Src uint16
	Dst uint16
}

func (obj keyPorts) bytes() []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], obj.Src)
	binary.BigEndian.PutUint16(data[2:4], obj.Dst)
	return data
}

func (obj *keyPorts) unmarshal(name string, data []byte) error {
	if err := checkLen(name, data, 4); err != nil {
		return err
	}
	obj.Src = binary.BigEndian.Uint16(data[0:2])
	obj.Dst = binary.BigEndian.Uint16(data[2:4])
	return nil
}

type KeyTCP keyPorts

func (obj *KeyTCP) GetType() uint16 {
	return OVS_KEY_ATTR_TCP
}

func (obj *KeyTCP) MarshalBinary() ([]byte, error) {
	return serializeAttr(OVS_KEY_ATTR_TCP, keyPorts(*obj).bytes()), nil
}

func (obj *KeyTCP) UnmarshalBinary(data []byte) error {
	return (*keyPorts)(obj).unmarshal("tcp", data)
}

type KeyUDP keyPorts

func (obj *KeyUDP) GetType() uint16 {
	return OVS_KEY_ATTR_UDP
}

func (obj *KeyUDP) MarshalBinary() ([]byte, error) {
	return serializeAttr(OVS_KEY_ATTR_UDP, keyPorts(*obj).bytes()), nil
}

func (obj *KeyUDP) UnmarshalBinary(data []byte) error {
	return (*keyPorts)(obj).unmarshal("udp", data)
}

// KeyMPLS carries one label stack entry in network byte order on the wire.
type KeyMPLS struct {
	Lse uint32
}

func (obj *KeyMPLS) GetType() uint16 {
	return OVS_KEY_ATTR_MPLS
}

func (obj *KeyMPLS) MarshalBinary() ([]byte, error) {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, obj.Lse)
	return serializeAttr(OVS_KEY_ATTR_MPLS, data), nil
}

func (obj *KeyMPLS) UnmarshalBinary(data []byte) error {
	if err := checkLen("mpls", data, 4); err != nil {
		return err
	}
	obj.Lse = binary.BigEndian.Uint32(data)
	return nil
}

type KeyPriority struct {
	Priority uint32
}

func (obj *KeyPriority) GetType() uint16 {
	return OVS_KEY_ATTR_PRIORITY
}

func (obj *KeyPriority) MarshalBinary() ([]byte, error) {
	return serializeU32(OVS_KEY_ATTR_PRIORITY, obj.Priority), nil
}

func (obj *KeyPriority) UnmarshalBinary(data []byte) error {
	if err := checkLen("skb_priority", data, 4); err != nil {
		return err
	}
	obj.Priority = nl.NativeEndian().Uint32(data)
	return nil
}

type KeySkbMark struct {
	Mark uint32
}

func (obj *KeySkbMark) GetType() uint16 {
	return OVS_KEY_ATTR_SKB_MARK
}

func (obj *KeySkbMark) MarshalBinary() ([]byte, error) {
	return serializeU32(OVS_KEY_ATTR_SKB_MARK, obj.Mark), nil
}

func (obj *KeySkbMark) UnmarshalBinary(data []byte) error {
	if err := checkLen("skb_mark", data, 4); err != nil {
		return err
	}
	obj.Mark = nl.NativeEndian().Uint32(data)
	return nil
}

// KeyTunnel keeps the nested tunnel attributes undecoded; the executor does not use them.
type KeyTunnel struct {
	Data []byte
}

func (obj *KeyTunnel) GetType() uint16 {
	return OVS_KEY_ATTR_TUNNEL
}

func (obj *KeyTunnel) MarshalBinary() ([]byte, error) {
	return serializeAttr(OVS_KEY_ATTR_TUNNEL, obj.Data), nil
}

func (obj *KeyTunnel) UnmarshalBinary(data []byte) error {
	obj.Data = append([]byte(nil), data...)
	return nil
}

type KeyInPort struct {
	Port uint32
}

func (obj *KeyInPort) GetType() uint16 {
	return OVS_KEY_ATTR_IN_PORT
}

func (obj *KeyInPort) MarshalBinary() ([]byte, error) {
	return serializeU32(OVS_KEY_ATTR_IN_PORT, obj.Port), nil
}

func (obj *KeyInPort) UnmarshalBinary(data []byte) error {
	if err := checkLen("in_port", data, 4); err != nil {
		return err
	}
	obj.Port = nl.NativeEndian().Uint32(data)
	return nil
}

type KeyVlan struct {
	Tci uint16
}

func (obj *KeyVlan) GetType() uint16 {
	return OVS_KEY_ATTR_VLAN
}

func (obj *KeyVlan) MarshalBinary() ([]byte, error) {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, obj.Tci)
	return serializeAttr(OVS_KEY_ATTR_VLAN, data), nil
}

func (obj *KeyVlan) UnmarshalBinary(data []byte) error {
	if err := checkLen("vlan", data, 2); err != nil {
		return err
	}
	obj.Tci = binary.BigEndian.Uint16(data)
	return nil
}

type KeyEthertype struct {
	Ethertype uint16
}

func (obj *KeyEthertype) GetType() uint16 {
	return OVS_KEY_ATTR_ETHERTYPE
}

func (obj *KeyEthertype) MarshalBinary() ([]byte, error) {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, obj.Ethertype)
	return serializeAttr(OVS_KEY_ATTR_ETHERTYPE, data), nil
}

func (obj *KeyEthertype) UnmarshalBinary(data []byte) error {
	if err := checkLen("eth_type", data, 2); err != nil {
		return err
	}
	obj.Ethertype = binary.BigEndian.Uint16(data)
	return nil
}

// KeyUnknown is any key attribute kind this package does not decode.
type KeyUnknown struct {
	Type uint16
	Data []byte
}

func (obj *KeyUnknown) GetType() uint16 {
	return obj.Type
}

func (obj *KeyUnknown) MarshalBinary() ([]byte, error) {
	return serializeAttr(obj.Type, obj.Data), nil
}

func decodeKey(a attr) (Key, error) {
	var key interface {
		Key
		UnmarshalBinary([]byte) error
	}
	switch a.Type {
	default:
		return &KeyUnknown{
			Type: a.Type,
			Data: append([]byte(nil), a.Value...),
		}, nil
	case OVS_KEY_ATTR_ETHERNET:
		key = new(KeyEthernet)
	case OVS_KEY_ATTR_IPV4:
		key = new(KeyIPv4)
	case OVS_KEY_ATTR_IPV6:
		key = new(KeyIPv6)
	case OVS_KEY_ATTR_TCP:
		key = new(KeyTCP)
	case OVS_KEY_ATTR_UDP:
		key = new(KeyUDP)
	case OVS_KEY_ATTR_MPLS:
		key = new(KeyMPLS)
	case OVS_KEY_ATTR_PRIORITY:
		key = new(KeyPriority)
	case OVS_KEY_ATTR_SKB_MARK:
		key = new(KeySkbMark)
	case OVS_KEY_ATTR_TUNNEL:
		key = new(KeyTunnel)
	case OVS_KEY_ATTR_IN_PORT:
		key = new(KeyInPort)
	case OVS_KEY_ATTR_VLAN:
		key = new(KeyVlan)
	case OVS_KEY_ATTR_ETHERTYPE:
		key = new(KeyEthertype)
	}
	if err := key.UnmarshalBinary(a.Value); err != nil {
		return nil, err
	}
	return key, nil
}
