// Package codec implements the redirector's binary packet framing: a
// fixed-size header with an optional extended-length extension, followed by
// a payload of that many bytes.
package codec

import (
	"encoding/binary"
	"errors"
)

// PacketType identifies what role a packet plays in a request/response
// exchange.
type PacketType uint8

const (
	Request  PacketType = 0x00
	Response PacketType = 0x10
	Notify   PacketType = 0x20
	Error    PacketType = 0x30
)

// headerSize is the leading fixed portion of every packet: length_low,
// component, command, error, type, extended flag. The 2-byte id follows it.
const headerSize = 10

// extendedFlag marks that two more bytes follow carrying the high 16 bits of
// the payload length.
const extendedFlag = 0x10

// maxShortLength is the largest payload length that fits without the
// extended-length bytes.
const maxShortLength = 0xFFFF

// errIncompleteFrame names the "need more bytes" condition. tryDecode and
// Decoder.Next report that condition as ok=false and do not return this error.
var errIncompleteFrame = errors.New("codec: incomplete frame")

// Header is the redirector's fixed packet header.
type Header struct {
	Component uint16
	Command   uint16
	ErrorCode uint16
	Type      PacketType
	ID        uint16
}

// Response returns a copy of h with Type set to Response; component, command,
// error and id are otherwise preserved so the caller can echo a request back.
func (h Header) Response() Header {
	h.Type = Response
	return h
}

// Packet is a full redirector frame: header plus payload bytes.
type Packet struct {
	Header  Header
	Payload []byte
}

// NewEmpty builds a Packet with no payload.
func NewEmpty(h Header) Packet {
	return Packet{Header: h}
}

// ResponseEmpty builds an empty-payload Response packet for the given
// request packet, preserving its header fields.
func ResponseEmpty(p Packet) Packet {
	return Packet{Header: p.Header.Response()}
}

// Encode appends the wire representation of p to dst and returns the result.
func Encode(dst []byte, p Packet) []byte {
	length := len(p.Payload)
	extended := length > maxShortLength

	var lengthLow uint16
	if extended {
		lengthLow = uint16(length & 0xFFFF)
	} else {
		lengthLow = uint16(length)
	}

	var hdr [headerSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], lengthLow)
	binary.BigEndian.PutUint16(hdr[2:4], p.Header.Component)
	binary.BigEndian.PutUint16(hdr[4:6], p.Header.Command)
	binary.BigEndian.PutUint16(hdr[6:8], p.Header.ErrorCode)
	hdr[8] = byte(p.Header.Type)
	if extended {
		hdr[9] = extendedFlag
	} else {
		hdr[9] = 0x00
	}
	dst = append(dst, hdr[:]...)

	var idBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], p.Header.ID)
	dst = append(dst, idBuf[:]...)

	if extended {
		var high [2]byte
		binary.BigEndian.PutUint16(high[:], uint16(length>>16))
		dst = append(dst, high[:]...)
	}

	dst = append(dst, p.Payload...)
	return dst
}

// tryDecode attempts to decode a single Packet from the front of src. It
// returns the packet, the number of bytes consumed, and ok=false if src does
// not yet hold a complete frame.
func tryDecode(src []byte) (Packet, int, bool) {
	// length_low(2) component(2) command(2) error(2) type(1) extended(1) id(2) = 12
	const minHeader = 12
	if len(src) < minHeader {
		return Packet{}, 0, false
	}

	lengthLow := binary.BigEndian.Uint16(src[0:2])
	component := binary.BigEndian.Uint16(src[2:4])
	command := binary.BigEndian.Uint16(src[4:6])
	errCode := binary.BigEndian.Uint16(src[6:8])
	ty := src[8]
	extended := src[9] == extendedFlag
	id := binary.BigEndian.Uint16(src[10:12])

	headerLen := minHeader
	length := int(lengthLow)
	if extended {
		headerLen = minHeader + 2
		if len(src) < headerLen {
			return Packet{}, 0, false
		}
		high := binary.BigEndian.Uint16(src[12:14])
		length += int(high) << 16
	}

	if len(src) < headerLen+length {
		return Packet{}, 0, false
	}

	payload := make([]byte, length)
	copy(payload, src[headerLen:headerLen+length])

	pkt := Packet{
		Header: Header{
			Component: component,
			Command:   command,
			ErrorCode: errCode,
			Type:      PacketType(ty),
			ID:        id,
		},
		Payload: payload,
	}
	return pkt, headerLen + length, true
}

// Decoder buffers bytes read from a stream and yields whole Packets as they
// become available, mirroring the accumulate-then-split-off shape of a
// streaming frame decoder.
type Decoder struct {
	buf []byte
}

// Feed appends newly-read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next returns the next fully-buffered packet, if any. ok is false when more
// bytes are required before a packet can be produced.
func (d *Decoder) Next() (Packet, bool) {
	pkt, n, ok := tryDecode(d.buf)
	if !ok {
		return Packet{}, false
	}
	remaining := len(d.buf) - n
	copy(d.buf, d.buf[n:])
	d.buf = d.buf[:remaining]
	return pkt, true
}
