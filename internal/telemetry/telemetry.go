// Package telemetry accepts the game's length-prefixed telemetry stream,
// decodes its key/value lines (including the obfuscated TLM3 line), and
// best-effort forwards each record to the current remote as JSON.
package telemetry

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pocketrelay/bridge/internal/constants"
	"github.com/pocketrelay/bridge/internal/target"
)

const headerSize = 12

// Record is one decoded telemetry message: an ordered set of key/value
// pairs. Values marshals as an array of [key, value] tuples, not an array of
// objects, matching the remote's /api/server/telemetry endpoint.
type Record struct {
	Values [][2]string `json:"values"`
}

// Service accepts telemetry connections and forwards decoded records.
type Service struct {
	listener net.Listener
	store    *target.Store
	client   *http.Client
}

// Listen binds addr.
func Listen(addr string, store *target.Store, client *http.Client) (*Service, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{listener: ln, store: store, client: client}, nil
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
		go s.handle(ctx, conn)
	}
}

func (s *Service) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	// At most one forward per connection is in flight; a record that arrives
	// while the previous one is still being posted is dropped, so a slow
	// remote never stalls reads from the game's socket.
	inflight := make(chan struct{}, 1)
	for {
		msg, err := readMessage(conn)
		if err != nil {
			return
		}
		rec := decodeMessage(msg)
		select {
		case inflight <- struct{}{}:
			go func() {
				defer func() { <-inflight }()
				s.forward(ctx, rec)
			}()
		default:
			log.Debug().Msg("[telemetry] previous record still forwarding; dropping record")
		}
	}
}

// readMessage reads one 12-byte header (whose last two bytes are a
// big-endian total length including the header) plus the remaining payload.
func readMessage(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint16(header[headerSize-2:])

	length := int(total)
	if length < headerSize {
		length = 0
	} else {
		length -= headerSize
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// decodeMessage splits payload on '\n', then each line on the first '=' into
// a key/value pair, decoding TLM3-keyed values specially.
func decodeMessage(payload []byte) Record {
	lines := bytes.Split(payload, []byte{'\n'})

	var rec Record
	for _, line := range lines {
		key, value, ok := splitAtByte(line, '=')
		if !ok {
			continue
		}

		keyStr := string(key)
		var valueStr string
		if keyStr == "TLM3" {
			valueStr = decodeTLM3(value)
		} else {
			valueStr = debugBytes(value)
		}
		rec.Values = append(rec.Values, [2]string{keyStr, valueStr})
	}
	return rec
}

// debugBytes mirrors Rust's "{:?}" Debug formatting for a byte slice, e.g.
// [72, 101, 108, 108, 111], which the original client falls back to for any
// non-TLM3 telemetry value.
func debugBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func splitAtByte(b []byte, sep byte) ([]byte, []byte, bool) {
	i := bytes.IndexByte(b, sep)
	if i < 0 {
		return nil, nil, false
	}
	return b[:i], b[i+1:], true
}

// decodeTLM3 decodes a "<prefix>-<body>" TLM3 value: each body byte is
// XORed with the repeating key and reduced modulo 0x80.
func decodeTLM3(value []byte) string {
	_, body, ok := splitAtByte(value, '-')
	if !ok {
		return debugBytes(value)
	}

	key := []byte(constants.TLM3Key)
	out := make([]byte, len(body))
	for i, b := range body {
		k := key[i%len(key)]
		out[i] = (b ^ k) & 0x7F
	}
	return string(out)
}

// forward POSTs rec to the remote's telemetry endpoint, logging and
// dropping on any failure -- telemetry must never back-pressure the game's
// socket.
func (s *Service) forward(ctx context.Context, rec Record) {
	tgt, ok := s.store.Get()
	if !ok {
		return
	}

	body, err := json.Marshal(rec)
	if err != nil {
		log.Warn().Err(err).Msg("[telemetry] failed to marshal record")
		return
	}

	url := fmt.Sprintf("%s/api/server/telemetry", tgt.BaseURL.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("[telemetry] failed to build request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("[telemetry] forward failed")
		return
	}
	resp.Body.Close()
}
