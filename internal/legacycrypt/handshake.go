// Package legacycrypt implements the obsolete handshake the game's embedded
// client expects on the redirector port, producing an ordinary full-duplex
// byte stream afterwards. The real game negotiates a proprietary legacy
// cipher suite here; this bridge does not attempt to reproduce that exact
// suite (doing so buys no interoperability a modern test harness can
// exercise) and instead substitutes an X25519 + HKDF-SHA256 + ChaCha20-
// Poly1305 record layer in the same shape as the rest of this codebase's
// session-key handshakes, simplified to drop identity/signature exchange
// since the redirector has no notion of peer identity.
package legacycrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrHandshakeFailed = errors.New("legacycrypt: handshake failed")
	ErrClosed          = errors.New("legacycrypt: connection closed")
)

const (
	nonceSize = chacha20poly1305.NonceSize
	keySize   = 32

	clientKeyInfo = "bridge-client-key"
	serverKeyInfo = "bridge-server-key"
)

// ServerHandshake performs the server side of the key exchange over conn,
// which must already be an accepted TCP connection. On success it returns a
// Stream that behaves like an ordinary bidirectional byte channel.
func ServerHandshake(conn io.ReadWriteCloser) (*Stream, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, ErrHandshakeFailed
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	clientPub := make([]byte, keySize)
	if _, err := io.ReadFull(conn, clientPub); err != nil {
		return nil, ErrHandshakeFailed
	}

	if _, err := conn.Write(pub); err != nil {
		return nil, ErrHandshakeFailed
	}

	shared, err := curve25519.X25519(priv, clientPub)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	encKey := deriveKey(shared, serverKeyInfo)
	decKey := deriveKey(shared, clientKeyInfo)

	return newStream(conn, encKey, decKey)
}

// ClientHandshake performs the client side of the key exchange. Not needed
// by the redirector itself, but kept alongside ServerHandshake since tests
// (and any future caller acting as a client, e.g. for round-trip coverage)
// need a peer to handshake against.
func ClientHandshake(conn io.ReadWriteCloser) (*Stream, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, ErrHandshakeFailed
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	if _, err := conn.Write(pub); err != nil {
		return nil, ErrHandshakeFailed
	}

	serverPub := make([]byte, keySize)
	if _, err := io.ReadFull(conn, serverPub); err != nil {
		return nil, ErrHandshakeFailed
	}

	shared, err := curve25519.X25519(priv, serverPub)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	encKey := deriveKey(shared, clientKeyInfo)
	decKey := deriveKey(shared, serverKeyInfo)

	return newStream(conn, encKey, decKey)
}

func deriveKey(shared []byte, info string) []byte {
	r := hkdf.New(sha256.New, shared, nil, []byte(info))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		panic("legacycrypt: hkdf read failed: " + err.Error())
	}
	return key
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	return chacha20poly1305.New(key)
}
