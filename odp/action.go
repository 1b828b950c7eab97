package odp

import (
	"encoding/binary"
	"fmt"

	"github.com/vishvananda/netlink/nl"
)

// Action is one decoded action record.
type Action interface {
	GetType() uint16
	MarshalBinary() ([]byte, error)
	String() string
}

// Actions is an ordered action list.
type Actions []Action

// MaxNestingDepth bounds SAMPLE and ENCAP nesting accepted by the decoders.
const MaxNestingDepth = 32

// ParseActions decodes a flat attribute stream into an action list.
func ParseActions(data []byte) (Actions, error) {
	return parseActions(data, 0)
}

func parseActions(data []byte, depth int) (Actions, error) {
	if depth > MaxNestingDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, MaxNestingDepth)
	}
	attrs, err := parseAttrs(data)
	if err != nil {
		return nil, err
	}
	actions := make(Actions, 0, len(attrs))
	for _, a := range attrs {
		if action, err := decodeAction(a, depth); err != nil {
			return nil, err
		} else {
			actions = append(actions, action)
		}
	}
	return actions, nil
}

func (obj Actions) MarshalBinary() ([]byte, error) {
	var data []byte
	for _, a := range obj {
		if buf, err := a.MarshalBinary(); err != nil {
			return nil, err
		} else {
			data = append(data, buf...)
		}
	}
	return data, nil
}

type ActionOutput struct {
	Port uint32
}

func (obj *ActionOutput) GetType() uint16 {
	return OVS_ACTION_ATTR_OUTPUT
}

func (obj *ActionOutput) MarshalBinary() ([]byte, error) {
	return serializeU32(OVS_ACTION_ATTR_OUTPUT, obj.Port), nil
}

func (obj *ActionOutput) UnmarshalBinary(data []byte) error {
	if err := checkLen("output", data, 4); err != nil {
		return err
	}
	obj.Port = nl.NativeEndian().Uint32(data)
	return nil
}

// ActionUserspace sends the packet to userspace. Raw is the whole attribute
// as received, so the receiver can read any upcall metadata carried in it.
type ActionUserspace struct {
	Pid      uint32
	Userdata []byte
	Raw      []byte
}

func (obj *ActionUserspace) GetType() uint16 {
	return OVS_ACTION_ATTR_USERSPACE
}

func (obj *ActionUserspace) MarshalBinary() ([]byte, error) {
	if len(obj.Raw) != 0 {
		return append([]byte(nil), obj.Raw...), nil
	}
	data := serializeU32(OVS_USERSPACE_ATTR_PID, obj.Pid)
	if obj.Userdata != nil {
		data = append(data, serializeAttr(OVS_USERSPACE_ATTR_USERDATA, obj.Userdata)...)
	}
	return serializeAttr(OVS_ACTION_ATTR_USERSPACE, data), nil
}

func (obj *ActionUserspace) unmarshal(a attr) error {
	attrs, err := parseAttrs(a.Value)
	if err != nil {
		return err
	}
	for _, sub := range attrs {
		switch sub.Type {
		case OVS_USERSPACE_ATTR_PID:
			if err := checkLen("userspace pid", sub.Value, 4); err != nil {
				return err
			}
			obj.Pid = nl.NativeEndian().Uint32(sub.Value)
		case OVS_USERSPACE_ATTR_USERDATA:
			obj.Userdata = append([]byte(nil), sub.Value...)
		}
	}
	obj.Raw = append([]byte(nil), a.Raw...)
	return nil
}

// ActionSet carries exactly one key record naming the field to rewrite.
type ActionSet struct {
	Key Key
}

func (obj *ActionSet) GetType() uint16 {
	return OVS_ACTION_ATTR_SET
}

func (obj *ActionSet) MarshalBinary() ([]byte, error) {
	if obj.Key == nil {
		return nil, fmt.Errorf("set action without key")
	}
	if data, err := obj.Key.MarshalBinary(); err != nil {
		return nil, err
	} else {
		return serializeAttr(OVS_ACTION_ATTR_SET, data), nil
	}
}

func (obj *ActionSet) UnmarshalBinary(data []byte) error {
	attrs, err := parseAttrs(data)
	if err != nil {
		return err
	}
	if len(attrs) != 1 {
		return fmt.Errorf("%w: set carries %d key attributes, want 1", ErrMalformed, len(attrs))
	}
	if key, err := decodeKey(attrs[0]); err != nil {
		return err
	} else {
		obj.Key = key
	}
	return nil
}

type ActionPushVlan struct {
	Tpid uint16
	Tci  uint16
}

func (obj *ActionPushVlan) GetType() uint16 {
	return OVS_ACTION_ATTR_PUSH_VLAN
}

func (obj *ActionPushVlan) MarshalBinary() ([]byte, error) {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], obj.Tpid)
	binary.BigEndian.PutUint16(data[2:4], obj.Tci)
	return serializeAttr(OVS_ACTION_ATTR_PUSH_VLAN, data), nil
}

func (obj *ActionPushVlan) UnmarshalBinary(data []byte) error {
	if err := checkLen("push_vlan", data, 4); err != nil {
		return err
	}
	obj.Tpid = binary.BigEndian.Uint16(data[0:2])
	obj.Tci = binary.BigEndian.Uint16(data[2:4])
	return nil
}

type ActionPopVlan struct{}

func (obj *ActionPopVlan) GetType() uint16 {
	return OVS_ACTION_ATTR_POP_VLAN
}

func (obj *ActionPopVlan) MarshalBinary() ([]byte, error) {
	return serializeAttr(OVS_ACTION_ATTR_POP_VLAN, nil), nil
}

func (obj *ActionPopVlan) UnmarshalBinary(data []byte) error {
	return checkLen("pop_vlan", data, 0)
}

type ActionPushMpls struct {
	Lse       uint32
	Ethertype uint16
}

func (obj *ActionPushMpls) GetType() uint16 {
	return OVS_ACTION_ATTR_PUSH_MPLS
}

func (obj *ActionPushMpls) MarshalBinary() ([]byte, error) {
	data := make([]byte, 8) // struct ovs_action_push_mpls is padded to 8
	binary.BigEndian.PutUint32(data[0:4], obj.Lse)
	binary.BigEndian.PutUint16(data[4:6], obj.Ethertype)
	return serializeAttr(OVS_ACTION_ATTR_PUSH_MPLS, data), nil
}

func (obj *ActionPushMpls) UnmarshalBinary(data []byte) error {
	if len(data) != 6 && len(data) != 8 {
		return fmt.Errorf("%w: push_mpls payload length %d", ErrMalformed, len(data))
	}
	obj.Lse = binary.BigEndian.Uint32(data[0:4])
	obj.Ethertype = binary.BigEndian.Uint16(data[4:6])
	return nil
}

type ActionPopMpls struct {
	Ethertype uint16
}

func (obj *ActionPopMpls) GetType() uint16 {
	return OVS_ACTION_ATTR_POP_MPLS
}

func (obj *ActionPopMpls) MarshalBinary() ([]byte, error) {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, obj.Ethertype)
	return serializeAttr(OVS_ACTION_ATTR_POP_MPLS, data), nil
}

func (obj *ActionPopMpls) UnmarshalBinary(data []byte) error {
	if err := checkLen("pop_mpls", data, 2); err != nil {
		return err
	}
	obj.Ethertype = binary.BigEndian.Uint16(data)
	return nil
}

/*
ActionSample runs Actions with probability Probability/2^32.

HasProbability is false when the attribute carried no probability, which
means the nested list always runs. Reserved lists sample attribute kinds
other than probability and actions, in arrival order.
*/
type ActionSample struct {
	Probability    uint32
	HasProbability bool
	Actions        Actions
	Reserved       []uint16
}

// NewSample returns a sample action gated by probability.
func NewSample(probability uint32, actions ...Action) *ActionSample {
	return &ActionSample{
		Probability:    probability,
		HasProbability: true,
		Actions:        Actions(actions),
	}
}

func (obj *ActionSample) GetType() uint16 {
	return OVS_ACTION_ATTR_SAMPLE
}

func (obj *ActionSample) MarshalBinary() ([]byte, error) {
	var data []byte
	if obj.HasProbability {
		data = append(data, serializeU32(OVS_SAMPLE_ATTR_PROBABILITY, obj.Probability)...)
	}
	if nested, err := obj.Actions.MarshalBinary(); err != nil {
		return nil, err
	} else {
		data = append(data, serializeAttr(OVS_SAMPLE_ATTR_ACTIONS, nested)...)
	}
	return serializeAttr(OVS_ACTION_ATTR_SAMPLE, data), nil
}

func (obj *ActionSample) UnmarshalBinary(data []byte) error {
	return obj.unmarshal(data, 0)
}

// unmarshal decodes the sample payload, depth being the number of enclosing samples.
func (obj *ActionSample) unmarshal(data []byte, depth int) error {
	attrs, err := parseAttrs(data)
	if err != nil {
		return err
	}
	for _, a := range attrs {
		switch a.Type {
		case OVS_SAMPLE_ATTR_PROBABILITY:
			if err := checkLen("sample probability", a.Value, 4); err != nil {
				return err
			}
			obj.Probability = nl.NativeEndian().Uint32(a.Value)
			obj.HasProbability = true
		case OVS_SAMPLE_ATTR_ACTIONS:
			if actions, err := parseActions(a.Value, depth+1); err != nil {
				return err
			} else {
				obj.Actions = actions
			}
		default:
			obj.Reserved = append(obj.Reserved, a.Type)
		}
	}
	return nil
}

// ActionUnknown is any action kind this package does not decode.
type ActionUnknown struct {
	Type uint16
	Data []byte
}

func (obj *ActionUnknown) GetType() uint16 {
	return obj.Type
}

func (obj *ActionUnknown) MarshalBinary() ([]byte, error) {
	return serializeAttr(obj.Type, obj.Data), nil
}

func decodeAction(a attr, depth int) (Action, error) {
	var err error
	var action Action
	switch a.Type {
	default:
		return &ActionUnknown{
			Type: a.Type,
			Data: append([]byte(nil), a.Value...),
		}, nil
	case OVS_ACTION_ATTR_OUTPUT:
		act := new(ActionOutput)
		err = act.UnmarshalBinary(a.Value)
		action = act
	case OVS_ACTION_ATTR_USERSPACE:
		act := new(ActionUserspace)
		err = act.unmarshal(a)
		action = act
	case OVS_ACTION_ATTR_SET:
		act := new(ActionSet)
		err = act.UnmarshalBinary(a.Value)
		action = act
	case OVS_ACTION_ATTR_PUSH_VLAN:
		act := new(ActionPushVlan)
		err = act.UnmarshalBinary(a.Value)
		action = act
	case OVS_ACTION_ATTR_POP_VLAN:
		act := new(ActionPopVlan)
		err = act.UnmarshalBinary(a.Value)
		action = act
	case OVS_ACTION_ATTR_SAMPLE:
		act := new(ActionSample)
		err = act.unmarshal(a.Value, depth)
		action = act
	case OVS_ACTION_ATTR_PUSH_MPLS:
		act := new(ActionPushMpls)
		err = act.UnmarshalBinary(a.Value)
		action = act
	case OVS_ACTION_ATTR_POP_MPLS:
		act := new(ActionPopMpls)
		err = act.UnmarshalBinary(a.Value)
		action = act
	}
	if err != nil {
		return nil, err
	}
	return action, nil
}
