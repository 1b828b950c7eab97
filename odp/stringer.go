package odp

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func (obj Actions) String() string {
	var seq []string
	for _, a := range obj {
		seq = append(seq, a.String())
	}
	return strings.Join(seq, ",")
}

func (obj *ActionOutput) String() string {
	return fmt.Sprintf("output:%d", obj.Port)
}

func (obj *ActionUserspace) String() string {
	if obj.Userdata != nil {
		return fmt.Sprintf("userspace(pid=%d,userdata(%s))",
			obj.Pid,
			hex.EncodeToString(obj.Userdata))
	}
	return fmt.Sprintf("userspace(pid=%d)", obj.Pid)
}

func (obj *ActionSet) String() string {
	if obj.Key == nil {
		return "set()"
	}
	return fmt.Sprintf("set(%v)", obj.Key)
}

func (obj *ActionPushVlan) String() string {
	return fmt.Sprintf("push_vlan(tpid=0x%04x,vid=%d,pcp=%d)",
		obj.Tpid,
		obj.Tci&VLAN_VID_MASK,
		(obj.Tci&VLAN_PCP_MASK)>>VLAN_PCP_SHIFT)
}

func (obj *ActionPopVlan) String() string {
	return "pop_vlan"
}

func (obj *ActionPushMpls) String() string {
	return fmt.Sprintf("push_mpls(%s,eth_type=0x%x)",
		formatLse(obj.Lse),
		obj.Ethertype)
}

func (obj *ActionPopMpls) String() string {
	return fmt.Sprintf("pop_mpls(eth_type=0x%x)", obj.Ethertype)
}

func (obj *ActionSample) String() string {
	rate := "100.0%"
	if obj.HasProbability {
		rate = fmt.Sprintf("%.1f%%", 100*float64(obj.Probability)/(1<<32))
	}
	return fmt.Sprintf("sample(sample=%s,actions(%v))", rate, obj.Actions)
}

func (obj *ActionUnknown) String() string {
	return fmt.Sprintf("action%d(%s)", obj.Type, hex.EncodeToString(obj.Data))
}

func formatLse(lse uint32) string {
	label, tc, bos, ttl := MplsLseFields(lse)
	var b int
	if bos {
		b = 1
	}
	return fmt.Sprintf("label=%d,tc=%d,ttl=%d,bos=%d", label, tc, ttl, b)
}

func (obj *KeyEthernet) String() string {
	return fmt.Sprintf("eth(src=%v,dst=%v)", obj.Src, obj.Dst)
}

func (obj *KeyIPv4) String() string {
	return fmt.Sprintf("ipv4(src=%v,dst=%v,proto=%d,tos=0x%x,ttl=%d,frag=%d)",
		obj.Src, obj.Dst, obj.Proto, obj.Tos, obj.Ttl, obj.Frag)
}

func (obj *KeyIPv6) String() string {
	return fmt.Sprintf("ipv6(src=%v,dst=%v,label=0x%x,proto=%d,tclass=0x%x,hlimit=%d,frag=%d)",
		obj.Src, obj.Dst, obj.Label, obj.Proto, obj.Tclass, obj.Hlimit, obj.Frag)
}

func (obj *KeyTCP) String() string {
	return fmt.Sprintf("tcp(src=%d,dst=%d)", obj.Src, obj.Dst)
}

func (obj *KeyUDP) String() string {
	return fmt.Sprintf("udp(src=%d,dst=%d)", obj.Src, obj.Dst)
}

func (obj *KeyMPLS) String() string {
	return fmt.Sprintf("mpls(%s)", formatLse(obj.Lse))
}

func (obj *KeyPriority) String() string {
	return fmt.Sprintf("skb_priority(0x%x)", obj.Priority)
}

func (obj *KeySkbMark) String() string {
	return fmt.Sprintf("skb_mark(0x%x)", obj.Mark)
}

func (obj *KeyTunnel) String() string {
	return fmt.Sprintf("tunnel(%s)", hex.EncodeToString(obj.Data))
}

func (obj *KeyInPort) String() string {
	return fmt.Sprintf("in_port(%d)", obj.Port)
}

func (obj *KeyVlan) String() string {
	return fmt.Sprintf("vlan(vid=%d,pcp=%d)",
		obj.Tci&VLAN_VID_MASK,
		(obj.Tci&VLAN_PCP_MASK)>>VLAN_PCP_SHIFT)
}

func (obj *KeyEthertype) String() string {
	return fmt.Sprintf("eth_type(0x%04x)", obj.Ethertype)
}

func (obj *KeyUnknown) String() string {
	return fmt.Sprintf("key%d(%s)", obj.Type, hex.EncodeToString(obj.Data))
}

func (self FlowKey) String() string {
	var seq []string
	for _, k := range self.Keys() {
		seq = append(seq, k.String())
	}
	return strings.Join(seq, ",")
}

var actionNames = map[uint16]string{
	OVS_ACTION_ATTR_OUTPUT:    "output",
	OVS_ACTION_ATTR_USERSPACE: "userspace",
	OVS_ACTION_ATTR_SET:       "set",
	OVS_ACTION_ATTR_PUSH_VLAN: "push_vlan",
	OVS_ACTION_ATTR_POP_VLAN:  "pop_vlan",
	OVS_ACTION_ATTR_SAMPLE:    "sample",
	OVS_ACTION_ATTR_PUSH_MPLS: "push_mpls",
	OVS_ACTION_ATTR_POP_MPLS:  "pop_mpls",
}

// ActionName returns a short lowercase name of an action tag, suitable for a metric label.
func ActionName(atype uint16) string {
	if name, ok := actionNames[atype]; ok {
		return name
	}
	return "unknown"
}
