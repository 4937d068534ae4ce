package codec

import "encoding/binary"

// netAddrTag identifies the kind of address a server-instance record carries.
// Value 0x0 ("net address") is the only one this bridge ever emits, since it
// always redirects the game to a fixed loopback address.
const netAddrTag = 0x0

// EncodeLocalInstance builds the structured-field payload the redirector
// sends back for a GetServerInstance request: a tagged union wrapping an
// IPv4/port pair plus the secure/dns flags, all pointing at the local main
// listener on loopback.
//
// The wire shape here is a minimal stand-in for the game's full structured
// field encoding (tag+group framing) -- just enough for this bridge's single
// fixed record, not a general-purpose serializer.
func EncodeLocalInstance(mainPort uint16) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, netAddrTag)

	var ip [4]byte
	binary.BigEndian.PutUint32(ip[:], ipv4Loopback)
	buf = append(buf, ip[:]...)

	var port [2]byte
	binary.BigEndian.PutUint16(port[:], mainPort)
	buf = append(buf, port[:]...)

	buf = append(buf, 0 /* secure */, 0 /* dns */)
	return buf
}

const ipv4Loopback = 0x7F000001 // 127.0.0.1

// LocalInstance is the decoded form of EncodeLocalInstance's payload, used by
// tests (and any client-side verification) to check the record a redirector
// response carries.
type LocalInstance struct {
	IP     uint32
	Port   uint16
	Secure bool
	DNS    bool
}

// DecodeLocalInstance parses a payload produced by EncodeLocalInstance.
func DecodeLocalInstance(payload []byte) (LocalInstance, bool) {
	if len(payload) < 9 || payload[0] != netAddrTag {
		return LocalInstance{}, false
	}
	ip := binary.BigEndian.Uint32(payload[1:5])
	port := binary.BigEndian.Uint16(payload[5:7])
	secure := payload[7] != 0
	dns := payload[8] != 0
	return LocalInstance{IP: ip, Port: port, Secure: secure, DNS: dns}, true
}
