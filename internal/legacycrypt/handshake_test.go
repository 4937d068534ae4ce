package legacycrypt

import (
	"io"
	"net"
	"testing"
)

func TestHandshakeAndRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	type result struct {
		stream *Stream
		err    error
	}
	serverCh := make(chan result, 1)
	go func() {
		s, err := ServerHandshake(serverConn)
		serverCh <- result{s, err}
	}()

	clientStream, err := ClientHandshake(clientConn)
	if err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}

	res := <-serverCh
	if res.err != nil {
		t.Fatalf("ServerHandshake: %v", res.err)
	}
	serverStream := res.stream

	const msg = "hello from the game client"
	writeErrCh := make(chan error, 1)
	go func() {
		_, err := clientStream.Write([]byte(msg))
		writeErrCh <- err
	}()

	buf := make([]byte, 256)
	n, err := serverStream.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := <-writeErrCh; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if string(buf[:n]) != msg {
		t.Fatalf("got %q, want %q", buf[:n], msg)
	}
}

func TestStreamReadAcrossMultipleCalls(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	serverCh := make(chan *Stream, 1)
	go func() {
		s, _ := ServerHandshake(serverConn)
		serverCh <- s
	}()
	clientStream, err := ClientHandshake(clientConn)
	if err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}
	serverStream := <-serverCh
	if serverStream == nil {
		t.Fatalf("server handshake failed")
	}

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}

	go func() {
		clientStream.Write(payload)
	}()

	got := make([]byte, 0, len(payload))
	small := make([]byte, 10)
	for len(got) < len(payload) {
		n, err := serverStream.Read(small)
		if err != nil && err != io.EOF {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, small[:n]...)
	}

	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], payload[i])
		}
	}
}
