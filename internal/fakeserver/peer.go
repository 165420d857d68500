package fakeserver

import (
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/roomsync/pkg/codec"
	"github.com/vango-dev/roomsync/pkg/protocol"
)

// Peer is the server side of one room connection.
type Peer struct {
	srv *Server
	ws  *websocket.Conn

	// Query and Header are taken from the upgrade request.
	Query  url.Values
	Header http.Header

	wmu       sync.Mutex
	frames    chan []byte
	done      chan struct{}
	closeCode atomic.Int32
	dropOnce  sync.Once
}

func newPeer(s *Server, ws *websocket.Conn, r *http.Request) *Peer {
	return &Peer{
		srv:    s,
		ws:     ws,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		frames: make(chan []byte, 1024),
		done:   make(chan struct{}),
	}
}

func (p *Peer) readLoop() {
	defer close(p.done)
	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			p.closeCode.Store(int32(code))
			return
		}
		select {
		case p.frames <- data:
		default:
		}
	}
}

// Send writes a raw frame.
func (p *Peer) Send(frame []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.ws.WriteMessage(websocket.BinaryMessage, frame)
}

// SendCode writes a frame with code and payload.
func (p *Peer) SendCode(code protocol.Code, payload []byte) error {
	return p.Send(protocol.EncodeFrame(code, payload))
}

// Join sends the configured join confirmation.
func (p *Peer) Join() error {
	payload, err := protocol.EncodeJoin(protocol.JoinConfirmation{
		ReconnectionToken: p.srv.config.ReconnectionToken,
		SerializerID:      p.srv.config.SerializerID,
		Handshake:         p.srv.config.Handshake,
	})
	if err != nil {
		return err
	}
	return p.SendCode(protocol.CodeJoinRoom, payload)
}

// SendState writes a full ROOM_STATE frame.
func (p *Peer) SendState(data []byte) error {
	return p.SendCode(protocol.CodeRoomState, data)
}

// SendPatch writes a ROOM_STATE_PATCH frame.
func (p *Peer) SendPatch(data []byte) error {
	return p.SendCode(protocol.CodeRoomStatePatch, data)
}

// SendMessage writes a ROOM_DATA frame.
func (p *Peer) SendMessage(msgType string, data codec.Value) error {
	return p.Send(protocol.EncodeRoomData(codec.String(msgType), data))
}

// SendError writes an ERROR frame.
func (p *Peer) SendError(code int, message string) error {
	return p.SendCode(protocol.CodeError, protocol.EncodeServerError(code, message))
}

// Next returns the next frame received from the client.
func (p *Peer) Next(timeout time.Duration) ([]byte, error) {
	select {
	case f := <-p.frames:
		return f, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

// Expect returns the next frame with code, discarding others.
func (p *Peer) Expect(code protocol.Code, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil, ErrTimeout
		}
		f, err := p.Next(left)
		if err != nil {
			return nil, err
		}
		if len(f) > 0 && protocol.Code(f[0]) == code {
			return f, nil
		}
	}
}

// Close sends a close frame with code and closes the connection.
func (p *Peer) Close(code int) error {
	p.wmu.Lock()
	err := p.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(time.Second))
	p.wmu.Unlock()
	p.Drop()
	return err
}

// Drop closes the connection without a close frame.
func (p *Peer) Drop() {
	p.dropOnce.Do(func() { _ = p.ws.Close() })
}

// Done is closed when the client side of the connection ends.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// CloseCode returns the close code the client sent, or 1006 when the
// connection ended without one. It is valid after Done.
func (p *Peer) CloseCode() int {
	return int(p.closeCode.Load())
}
