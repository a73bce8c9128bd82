package http

import (
	"bytes"
	"context"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// WSHandler upgrades HTTP connections and runs the control protocol over
// them, one record per text message.
type WSHandler struct {
	gateway   StreamServer
	readLimit int64
	log       *zerolog.Logger
}

// NewWSHandler builds a WebSocket handler. readLimit bounds one inbound
// message; zero keeps the library default.
func NewWSHandler(gateway StreamServer, readLimit int64, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{gateway: gateway, readLimit: readLimit, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Debug().Err(err).Msg("ws accept error")
		return
	}
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	ctx := r.Context()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("ws connection accepted")
	h.gateway.ServeConn(ctx, &wsStream{ctx: ctx, conn: conn})
}

// wsStream presents a WebSocket as the newline-delimited byte stream the
// gateway reads and writes.
type wsStream struct {
	ctx  context.Context
	conn *websocket.Conn
	buf  []byte
}

func (s *wsStream) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		typ, data, err := s.conn.Read(s.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return 0, io.EOF
			}
			return 0, err
		}
		if typ != websocket.MessageText {
			continue
		}
		if len(data) == 0 || data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		s.buf = data
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Write sends p as one text message. Callers write whole records.
func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.Write(s.ctx, websocket.MessageText, bytes.TrimSuffix(p, []byte{'\n'})); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close drops the connection without waiting for the close handshake, since
// it may run while a broadcast holds the registry lock.
func (s *wsStream) Close() error {
	return s.conn.CloseNow()
}
