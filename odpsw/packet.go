package odpsw

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

/*
Packet is an ethernet frame under execution.

The frame bytes are the packet. Layers() decodes them on demand into gopacket
views that locate headers; rewrites patch the bytes of the located header in
place and repair checksums incrementally, so bytes outside the rewritten field
and its checksums keep their value, including padding, truncated payloads and
zero udp checksums.

The bytes given to NewPacket are never written. The first rewrite works on a
private copy.
*/
type Packet struct {
	data   []byte
	owned  bool
	layers []gopacket.Layer // views of data, dropped on every rewrite
}

// NewPacket wraps an ethernet frame. data is referenced until the first rewrite.
func NewPacket(data []byte) *Packet {
	return &Packet{
		data: data,
	}
}

/*
Layers returns gopacket layer representation of this packet. The layers are
read only views: modifying them does not modify the packet.
*/
func (self *Packet) Layers() []gopacket.Layer {
	if self.layers == nil && len(self.data) != 0 {
		self.layers = gopacket.NewPacket(self.data, layers.LayerTypeEthernet, gopacket.NoCopy).Layers()
	}
	return self.layers
}

/*
Data returns []byte representation of this packet. You should treat this as
frozen data and should not modify the contents of returned slice.
*/
func (self *Packet) Data() []byte {
	return self.data
}

// Clone returns an independent copy, e.g. for an output port that queues the packet.
func (self *Packet) Clone() *Packet {
	return &Packet{
		data:  append([]byte(nil), self.data...),
		owned: true,
	}
}

// Ethernet is the resolved L2 view.
func (self *Packet) Ethernet() *layers.Ethernet {
	for _, layer := range self.Layers() {
		if eth, ok := layer.(*layers.Ethernet); ok {
			return eth
		}
	}
	return nil
}

// writable returns the frame bytes for in place modification.
func (self *Packet) writable() []byte {
	if !self.owned {
		self.data = append([]byte(nil), self.data...)
		self.owned = true
	}
	self.layers = nil
	return self.data
}

// header is a decoded layer and its offset in the frame.
type header struct {
	layer  gopacket.Layer
	offset int
}

func (self *Packet) headers() []header {
	var hs []header
	offset := 0
	for _, layer := range self.Layers() {
		hs = append(hs, header{layer, offset})
		offset += len(layer.LayerContents())
	}
	return hs
}

// find returns the index of the first header of type t in hs, or -1.
func find(hs []header, t gopacket.LayerType) int {
	for i, h := range hs {
		if h.layer.LayerType() == t {
			return i
		}
	}
	return -1
}

// splice replaces length bytes at offset with insert.
func (self *Packet) splice(offset, length int, insert []byte) {
	data := make([]byte, 0, len(self.data)-length+len(insert))
	data = append(data, self.data[:offset]...)
	data = append(data, insert...)
	data = append(data, self.data[offset+length:]...)
	self.data = data
	self.owned = true
	self.layers = nil
}
