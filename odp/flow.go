package odp

import (
	"fmt"
)

// FlowKey is the set of matched fields of one packet. Executors pass it to
// userspace delivery untouched.
type FlowKey struct {
	Priority uint32
	SkbMark  uint32
	InPort   uint32
	Ethernet *KeyEthernet
	Vlan     *KeyVlan
	// Ethertype of the payload, the one inside the tag when Vlan is set.
	Ethertype uint16
	IPv4      *KeyIPv4
	IPv6      *KeyIPv6
	TCP       *KeyTCP
	UDP       *KeyUDP
	MPLS      *KeyMPLS
}

// ParseFlowKey decodes a key attribute stream. An ENCAP attribute is
// flattened, so the fields of a vlan tagged packet land in the same FlowKey.
// Attribute kinds without a FlowKey field are skipped.
func ParseFlowKey(data []byte) (*FlowKey, error) {
	key := new(FlowKey)
	if err := key.parse(data, 0); err != nil {
		return nil, err
	}
	return key, nil
}

func (self *FlowKey) parse(data []byte, depth int) error {
	if depth > MaxNestingDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, MaxNestingDepth)
	}
	attrs, err := parseAttrs(data)
	if err != nil {
		return err
	}
	for _, a := range attrs {
		if a.Type == OVS_KEY_ATTR_ENCAP {
			// the outer ethertype is the tpid
			self.Ethertype = 0
			if err := self.parse(a.Value, depth+1); err != nil {
				return err
			}
			continue
		}
		k, err := decodeKey(a)
		if err != nil {
			return err
		}
		switch t := k.(type) {
		case *KeyPriority:
			self.Priority = t.Priority
		case *KeySkbMark:
			self.SkbMark = t.Mark
		case *KeyInPort:
			self.InPort = t.Port
		case *KeyEthernet:
			self.Ethernet = t
		case *KeyVlan:
			self.Vlan = t
		case *KeyEthertype:
			self.Ethertype = t.Ethertype
		case *KeyIPv4:
			self.IPv4 = t
		case *KeyIPv6:
			self.IPv6 = t
		case *KeyTCP:
			self.TCP = t
		case *KeyUDP:
			self.UDP = t
		case *KeyMPLS:
			self.MPLS = t
		}
	}
	return nil
}

func (self FlowKey) l2Keys() []Key {
	keys := []Key{
		&KeyPriority{Priority: self.Priority},
		&KeyInPort{Port: self.InPort},
	}
	if self.SkbMark != 0 {
		keys = append(keys, &KeySkbMark{Mark: self.SkbMark})
	}
	if self.Ethernet != nil {
		keys = append(keys, self.Ethernet)
	}
	return keys
}

func (self FlowKey) payloadKeys() []Key {
	var keys []Key
	if self.Ethertype != 0 {
		keys = append(keys, &KeyEthertype{Ethertype: self.Ethertype})
	}
	if self.MPLS != nil {
		keys = append(keys, self.MPLS)
	}
	if self.IPv4 != nil {
		keys = append(keys, self.IPv4)
	}
	if self.IPv6 != nil {
		keys = append(keys, self.IPv6)
	}
	if self.TCP != nil {
		keys = append(keys, self.TCP)
	}
	if self.UDP != nil {
		keys = append(keys, self.UDP)
	}
	return keys
}

// Keys lists the present fields as key records, outer headers first.
func (self FlowKey) Keys() []Key {
	keys := self.l2Keys()
	if self.Vlan != nil {
		keys = append(keys, self.Vlan)
	}
	return append(keys, self.payloadKeys()...)
}

func marshalKeys(keys []Key) ([]byte, error) {
	var data []byte
	for _, k := range keys {
		if buf, err := k.MarshalBinary(); err != nil {
			return nil, err
		} else {
			data = append(data, buf...)
		}
	}
	return data, nil
}

// MarshalBinary encodes the key in datapath layout. A vlan tagged key
// carries ETHERTYPE 0x8100 after VLAN, and the payload keys inside ENCAP.
func (self FlowKey) MarshalBinary() ([]byte, error) {
	if self.Vlan == nil {
		return marshalKeys(self.Keys())
	}
	outer := append(self.l2Keys(), self.Vlan, &KeyEthertype{Ethertype: ETH_TYPE_VLAN})
	data, err := marshalKeys(outer)
	if err != nil {
		return nil, err
	}
	inner, err := marshalKeys(self.payloadKeys())
	if err != nil {
		return nil, err
	}
	return append(data, serializeAttr(OVS_KEY_ATTR_ENCAP, inner)...), nil
}
