// Package redirector implements the legacy service whose sole job is to
// answer the game's "where is the real game server?" request by pointing it
// back at this bridge's own main-tunnel listener.
package redirector

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pocketrelay/bridge/internal/codec"
	"github.com/pocketrelay/bridge/internal/constants"
	"github.com/pocketrelay/bridge/internal/legacycrypt"
)

const (
	componentRedirector = 0x0005
	commandGetInstance  = 0x0001
)

// Service accepts legacy-handshake connections and answers the one
// GetServerInstance request the game issues at startup.
type Service struct {
	listener net.Listener
	mainPort uint16
}

// Listen binds addr and returns a Service ready to Serve.
func Listen(addr string, mainPort uint16) (*Service, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Service{listener: ln, mainPort: mainPort}, nil
}

// Addr returns the bound listener address.
func (s *Service) Addr() net.Addr { return s.listener.Addr() }

// Close stops accepting new connections.
func (s *Service) Close() error { return s.listener.Close() }

// Serve accepts connections until ctx is cancelled or the listener closes.
func (s *Service) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handle(conn)
	}
}

func (s *Service) handle(conn net.Conn) {
	defer conn.Close()

	stream, err := legacycrypt.ServerHandshake(conn)
	if err != nil {
		log.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("[redirector] handshake failed")
		return
	}

	packets := make(chan codec.Packet)
	go decodeLoop(stream, packets)

	timer := time.NewTimer(constants.RedirectorIdleTimeout)
	defer timer.Stop()

	// AwaitingRequest: the single idle timer covers the whole wait for a
	// matching request, not each individual packet.
	for {
		select {
		case <-timer.C:
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}

			if pkt.Header.Component == componentRedirector && pkt.Header.Command == commandGetInstance {
				resp := codec.Packet{
					Header:  pkt.Header.Response(),
					Payload: codec.EncodeLocalInstance(s.mainPort),
				}
				stream.Write(codec.Encode(nil, resp))
				return
			}

			resp := codec.ResponseEmpty(pkt)
			if _, werr := stream.Write(codec.Encode(nil, resp)); werr != nil {
				return
			}
		}
	}
}

// decodeLoop reads from stream, feeding a Decoder and emitting whole packets
// until a read error closes the channel.
func decodeLoop(stream io.Reader, out chan<- codec.Packet) {
	defer close(out)
	var dec codec.Decoder
	buf := make([]byte, 4096)
	for {
		for {
			pkt, ok := dec.Next()
			if !ok {
				break
			}
			out <- pkt
		}
		n, err := stream.Read(buf)
		if err != nil {
			return
		}
		dec.Feed(buf[:n])
	}
}
