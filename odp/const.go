package odp

// ovs_action_attr
const (
	OVS_ACTION_ATTR_UNSPEC = iota
	OVS_ACTION_ATTR_OUTPUT
	OVS_ACTION_ATTR_USERSPACE
	OVS_ACTION_ATTR_SET
	OVS_ACTION_ATTR_PUSH_VLAN
	OVS_ACTION_ATTR_POP_VLAN
	OVS_ACTION_ATTR_SAMPLE
	OVS_ACTION_ATTR_PUSH_MPLS
	OVS_ACTION_ATTR_POP_MPLS
)

// ovs_key_attr
const (
	OVS_KEY_ATTR_UNSPEC = iota
	OVS_KEY_ATTR_ENCAP
	OVS_KEY_ATTR_PRIORITY
	OVS_KEY_ATTR_IN_PORT
	OVS_KEY_ATTR_ETHERNET
	OVS_KEY_ATTR_VLAN
	OVS_KEY_ATTR_ETHERTYPE
	OVS_KEY_ATTR_IPV4
	OVS_KEY_ATTR_IPV6
	OVS_KEY_ATTR_TCP
	OVS_KEY_ATTR_UDP
	OVS_KEY_ATTR_ICMP
	OVS_KEY_ATTR_ICMPV6
	OVS_KEY_ATTR_ARP
	OVS_KEY_ATTR_ND
	OVS_KEY_ATTR_SKB_MARK
	OVS_KEY_ATTR_TUNNEL
	OVS_KEY_ATTR_SCTP
	OVS_KEY_ATTR_TCP_FLAGS
	OVS_KEY_ATTR_DP_HASH
	OVS_KEY_ATTR_RECIRC_ID
	OVS_KEY_ATTR_MPLS
)

// ovs_sample_attr
const (
	OVS_SAMPLE_ATTR_UNSPEC = iota
	OVS_SAMPLE_ATTR_PROBABILITY
	OVS_SAMPLE_ATTR_ACTIONS
)

// ovs_userspace_attr
const (
	OVS_USERSPACE_ATTR_UNSPEC = iota
	OVS_USERSPACE_ATTR_PID
	OVS_USERSPACE_ATTR_USERDATA
)

const (
	ETH_TYPE_IP          = 0x0800
	ETH_TYPE_IPV6        = 0x86dd
	ETH_TYPE_VLAN        = 0x8100
	ETH_TYPE_VLAN_8021AD = 0x88a8
	ETH_TYPE_MPLS        = 0x8847
	ETH_TYPE_MPLS_MCAST  = 0x8848
)

const (
	VLAN_PCP_MASK  = 0xe000
	VLAN_PCP_SHIFT = 13
	VLAN_CFI       = 0x1000
	VLAN_VID_MASK  = 0x0fff
)

const (
	MPLS_LABEL_MASK  = 0xfffff000
	MPLS_LABEL_SHIFT = 12
	MPLS_TC_MASK     = 0x00000e00
	MPLS_TC_SHIFT    = 9
	MPLS_BOS_MASK    = 0x00000100
	MPLS_BOS_SHIFT   = 8
	MPLS_TTL_MASK    = 0x000000ff
)

// EthTypeMpls reports whether ethertype is one of the MPLS ethertypes.
func EthTypeMpls(ethertype uint16) bool {
	return ethertype == ETH_TYPE_MPLS || ethertype == ETH_TYPE_MPLS_MCAST
}

// MplsLse builds a label stack entry.
func MplsLse(label uint32, tc uint8, bos bool, ttl uint8) uint32 {
	lse := (label << MPLS_LABEL_SHIFT) & MPLS_LABEL_MASK
	lse |= (uint32(tc) << MPLS_TC_SHIFT) & MPLS_TC_MASK
	if bos {
		lse |= MPLS_BOS_MASK
	}
	lse |= uint32(ttl)
	return lse
}

// MplsLseFields splits a label stack entry.
func MplsLseFields(lse uint32) (label uint32, tc uint8, bos bool, ttl uint8) {
	label = (lse & MPLS_LABEL_MASK) >> MPLS_LABEL_SHIFT
	tc = uint8((lse & MPLS_TC_MASK) >> MPLS_TC_SHIFT)
	bos = lse&MPLS_BOS_MASK != 0
	ttl = uint8(lse & MPLS_TTL_MASK)
	return
}
