package odpsw

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/hkwi/godp/odp"
)

func init() {
	layers.MPLSPayloadDecoder = gopacket.DecodeFunc(decodeMPLSPayload)
	layers.EthernetTypeMetadata[odp.ETH_TYPE_VLAN_8021AD] = layers.EthernetTypeMetadata[layers.EthernetTypeDot1Q]
}

// decodeMPLSPayload guesses ip below the bottom of stack, and keeps anything else as raw payload.
func decodeMPLSPayload(data []byte, p gopacket.PacketBuilder) error {
	if len(data) == 0 {
		return gopacket.DecodePayload.Decode(data, p)
	}
	g := layers.ProtocolGuessingDecoder{}
	if err := g.Decode(data, p); err != nil {
		return gopacket.DecodePayload.Decode(data, p)
	}
	return nil
}
