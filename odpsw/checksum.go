package odpsw

import (
	"encoding/binary"
)

/*
csumUpdate returns the internet checksum sum after the bytes old were replaced
by new (RFC 1624). old and new have the same even length and start on a 16 bit
boundary of the checksummed data.
*/
func csumUpdate(sum uint16, old, new []byte) uint16 {
	acc := uint32(^sum)
	for i := 0; i+1 < len(old); i += 2 {
		acc += uint32(^binary.BigEndian.Uint16(old[i:]))
		acc += uint32(binary.BigEndian.Uint16(new[i:]))
	}
	for acc>>16 != 0 {
		acc = acc&0xffff + acc>>16
	}
	return ^uint16(acc)
}

// patchChecksum applies csumUpdate to the checksum field at field.
func patchChecksum(field []byte, old, new []byte) {
	binary.BigEndian.PutUint16(field, csumUpdate(binary.BigEndian.Uint16(field), old, new))
}

// patchUDPChecksum is patchChecksum keeping 0 as "no checksum".
func patchUDPChecksum(field []byte, old, new []byte) {
	sum := binary.BigEndian.Uint16(field)
	if sum == 0 {
		return
	}
	sum = csumUpdate(sum, old, new)
	if sum == 0 {
		sum = 0xffff
	}
	binary.BigEndian.PutUint16(field, sum)
}
