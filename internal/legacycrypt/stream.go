package legacycrypt

import (
	"crypto/cipher"
	"encoding/binary"
	"io"
)

// Stream wraps a handshaken connection, encrypting every Write and
// decrypting every Read as one AEAD-sealed, length-prefixed record. It
// satisfies io.ReadWriteCloser so callers downstream (the redirector's
// packet decoder) can treat it like any other byte stream.
type Stream struct {
	conn io.ReadWriteCloser

	enc      cipher.AEAD
	dec      cipher.AEAD
	encNonce uint64
	decNonce uint64

	pending []byte // leftover decrypted bytes from a prior Read call
}

func newStream(conn io.ReadWriteCloser, encKey, decKey []byte) (*Stream, error) {
	enc, err := newAEAD(encKey)
	if err != nil {
		return nil, err
	}
	dec, err := newAEAD(decKey)
	if err != nil {
		return nil, err
	}
	return &Stream{conn: conn, enc: enc, dec: dec}, nil
}

func nonceFor(counter uint64) []byte {
	n := make([]byte, nonceSize)
	binary.BigEndian.PutUint64(n[nonceSize-8:], counter)
	return n
}

// Write seals p as a single record and writes it as a 4-byte big-endian
// length prefix followed by the ciphertext.
func (s *Stream) Write(p []byte) (int, error) {
	nonce := nonceFor(s.encNonce)
	s.encNonce++

	sealed := s.enc.Seal(nil, nonce, p, nil)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	if _, err := s.conn.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	if _, err := s.conn.Write(sealed); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read fills p with plaintext, decrypting whole records as needed and
// buffering any excess until the next call.
func (s *Stream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		record, err := s.readRecord()
		if err != nil {
			return 0, err
		}
		s.pending = record
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *Stream) readRecord() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.conn, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])

	ciphertext := make([]byte, length)
	if _, err := io.ReadFull(s.conn, ciphertext); err != nil {
		return nil, err
	}

	nonce := nonceFor(s.decNonce)
	s.decNonce++

	plain, err := s.dec.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	return plain, nil
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	return s.conn.Close()
}
