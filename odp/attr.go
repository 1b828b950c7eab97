package odp

import (
	"errors"
	"fmt"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// ErrMalformed is wrapped by every decode error.
var ErrMalformed = errors.New("malformed attribute")

const attrTypeMask = ^uint16(unix.NLA_F_NESTED | unix.NLA_F_NET_BYTEORDER)

// attr is one decoded netlink attribute. Raw holds the header and value, without trailing padding.
type attr struct {
	Type  uint16
	Value []byte
	Raw   []byte
}

func align(length int) int {
	return (length + unix.NLA_ALIGNTO - 1) &^ (unix.NLA_ALIGNTO - 1)
}

func parseAttrs(data []byte) ([]attr, error) {
	if pad := align(len(data)) - len(data); pad > 0 {
		buf := make([]byte, len(data)+pad)
		copy(buf, data)
		data = buf
	}
	nlas, err := nl.ParseRouteAttr(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	attrs := make([]attr, len(nlas))
	cur := 0
	for i, a := range nlas {
		attrs[i] = attr{
			Type:  a.Attr.Type & attrTypeMask,
			Value: a.Value,
			Raw:   data[cur : cur+int(a.Attr.Len)],
		}
		cur += align(int(a.Attr.Len))
	}
	return attrs, nil
}

func checkLen(name string, value []byte, length int) error {
	if len(value) != length {
		return fmt.Errorf("%w: %s payload length %d, want %d", ErrMalformed, name, len(value), length)
	}
	return nil
}

func serializeAttr(atype uint16, data []byte) []byte {
	return nl.NewRtAttr(int(atype), data).Serialize()
}

func serializeU32(atype uint16, v uint32) []byte {
	return serializeAttr(atype, nl.Uint32Attr(v))
}
