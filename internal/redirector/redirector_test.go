package redirector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pocketrelay/bridge/internal/codec"
	"github.com/pocketrelay/bridge/internal/legacycrypt"
)

// S4 — Redirector exchange.
func TestRedirectorGetServerInstance(t *testing.T) {
	svc, err := Listen("127.0.0.1:0", 42128)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx)

	conn, err := net.Dial("tcp", svc.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	stream, err := legacycrypt.ClientHandshake(conn)
	if err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}

	req := codec.Packet{
		Header: codec.Header{
			Component: 0x0005,
			Command:   0x0001,
			Type:      codec.Request,
			ID:        42,
		},
	}
	if _, err := stream.Write(codec.Encode(nil, req)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var dec codec.Decoder
	buf := make([]byte, 4096)
	var resp codec.Packet
	for {
		if pkt, ok := dec.Next(); ok {
			resp = pkt
			break
		}
		n, err := stream.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		dec.Feed(buf[:n])
	}

	if resp.Header.ID != 42 {
		t.Errorf("id = %d, want 42", resp.Header.ID)
	}
	if resp.Header.Type != codec.Response {
		t.Errorf("type = %v, want Response", resp.Header.Type)
	}

	rec, ok := codec.DecodeLocalInstance(resp.Payload)
	if !ok {
		t.Fatalf("payload did not decode as a local instance record")
	}
	if rec.IP != 0x7F000001 {
		t.Errorf("ip = %#x, want 127.0.0.1", rec.IP)
	}
	if rec.Port != 42128 {
		t.Errorf("port = %d, want 42128", rec.Port)
	}
	if rec.Secure || rec.DNS {
		t.Errorf("secure/dns = %v/%v, want false/false", rec.Secure, rec.DNS)
	}
}

func TestRedirectorMismatchGetsEmptyResponse(t *testing.T) {
	svc, err := Listen("127.0.0.1:0", 42128)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx)

	conn, err := net.Dial("tcp", svc.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	stream, err := legacycrypt.ClientHandshake(conn)
	if err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}

	mismatch := codec.Packet{Header: codec.Header{Component: 0x0099, Command: 0x0001, Type: codec.Request, ID: 7}}
	if _, err := stream.Write(codec.Encode(nil, mismatch)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var dec codec.Decoder
	buf := make([]byte, 4096)
	var resp codec.Packet
	for {
		if pkt, ok := dec.Next(); ok {
			resp = pkt
			break
		}
		n, err := stream.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		dec.Feed(buf[:n])
	}

	if resp.Header.ID != 7 || resp.Header.Type != codec.Response {
		t.Fatalf("got %+v, want empty response echoing id=7", resp.Header)
	}
	if len(resp.Payload) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(resp.Payload))
	}
}
