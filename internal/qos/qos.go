// Package qos answers the game's UDP NAT-discovery probes: echo the
// request back with the sender's externally-visible address appended.
package qos

import (
	"context"
	"encoding/binary"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/pocketrelay/bridge/internal/publicaddr"
)

const scratchSize = 64

// Service is a UDP echo responder bound to a fixed port.
type Service struct {
	conn     *net.UDPConn
	resolver *publicaddr.Resolver
}

// Listen binds addr as a UDP socket.
func Listen(addr string, resolver *publicaddr.Resolver) (*Service, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Service{conn: conn, resolver: resolver}, nil
}

// Addr returns the bound socket address.
func (s *Service) Addr() net.Addr { return s.conn.LocalAddr() }

// Close releases the socket.
func (s *Service) Close() error { return s.conn.Close() }

// Serve reads datagrams until ctx is cancelled or the socket closes.
func (s *Service) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, scratchSize)
	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		reply, ok := s.buildReply(ctx, buf[:n], peer)
		if !ok {
			continue
		}
		if _, err := s.conn.WriteToUDP(reply, peer); err != nil {
			log.Debug().Err(err).Msg("[qos] write failed")
		}
	}
}

// buildReply constructs the N+10-byte echo reply for a single datagram.
func (s *Service) buildReply(ctx context.Context, request []byte, peer *net.UDPAddr) ([]byte, bool) {
	advertised := peer.IP
	if publicaddr.IsLoopbackOrPrivate(peer.IP) {
		ip, ok := s.resolver.Resolve(ctx)
		if !ok {
			return nil, false
		}
		advertised = ip
	}
	v4 := advertised.To4()
	if v4 == nil {
		return nil, false
	}

	reply := make([]byte, len(request)+10)
	n := copy(reply, request)
	copy(reply[n:n+4], v4)
	binary.BigEndian.PutUint16(reply[n+4:n+6], uint16(peer.Port))
	// remaining 4 bytes stay zero

	return reply, true
}
