package sockets

import (
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/utils"
)

// Pool holds at most one socket per id. Adding a socket under a taken id closes
// the previous one.
type Pool struct {
	sockets *utils.SyncMap[SocketID, Socket]
}

func NewSocketPool() *Pool {
	return &Pool{sockets: utils.NewSyncMap[SocketID, Socket]()}
}

func (p *Pool) Add(s Socket) {
	for {
		old, loaded := p.sockets.LoadOrStore(s.ID(), s)
		if !loaded || old == s {
			return
		}
		if p.sockets.CompareAndDelete(s.ID(), old) {
			_ = old.Close()
		}
	}
}

func (p *Pool) Get(id SocketID) (Socket, bool) {
	return p.sockets.Load(id)
}

// Remove drops s if it is still the socket stored under its id.
func (p *Pool) Remove(s Socket) bool {
	return p.sockets.CompareAndDelete(s.ID(), s)
}

func (p *Pool) Len() int {
	return p.sockets.Len()
}

func (p *Pool) Close() {
	p.sockets.Range(func(id SocketID, s Socket) bool {
		if p.sockets.CompareAndDelete(id, s) {
			_ = s.Close()
		}
		return true
	})
}
