// Package sockets wraps websocket connections for concurrent JSON use.
package sockets

import (
	"errors"
	"sync"

	"github.com/fasthttp/websocket"
)

type SocketID string

type Socket interface {
	ID() SocketID
	WriteJSON(message any) error
	ReadJSON(message any) error
	Close() error
}

// Conn is the part of a websocket connection a Socket needs. Both
// *websocket.Conn from fasthttp/websocket and the fiber contrib Conn satisfy it.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
	Close() error
}

// socketImpl allows one concurrent reader and one concurrent writer.
type socketImpl struct {
	id SocketID
	ws Conn

	readMx  sync.Mutex
	writeMx sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func NewSocket(id SocketID, ws Conn) Socket {
	return &socketImpl{id: id, ws: ws}
}

func (s *socketImpl) ID() SocketID {
	return s.id
}

func (s *socketImpl) WriteJSON(message any) error {
	s.writeMx.Lock()
	defer s.writeMx.Unlock()
	return s.ws.WriteJSON(message)
}

func (s *socketImpl) ReadJSON(message any) error {
	s.readMx.Lock()
	defer s.readMx.Unlock()
	return s.ws.ReadJSON(message)
}

func (s *socketImpl) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ws.Close()
	})
	return s.closeErr
}

// IsUnexpectedClose reports errors other than a normal or going-away close.
func IsUnexpectedClose(err error) bool {
	if err == nil {
		return false
	}
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return websocket.IsUnexpectedCloseError(closeErr, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
