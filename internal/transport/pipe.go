package transport

import (
	"sync"
)

// Pipe returns two connected in-memory Conns. A message written to one is
// read from the other. Closing either side closes both.
func Pipe() (Conn, Conn) {
	a2b := make(chan []byte, 64)
	b2a := make(chan []byte, 64)
	shared := &pipeState{done: make(chan struct{})}
	return &pipeConn{in: b2a, out: a2b, state: shared},
		&pipeConn{in: a2b, out: b2a, state: shared}
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

type pipeConn struct {
	in    <-chan []byte
	out   chan<- []byte
	state *pipeState
}

func (p *pipeConn) Read() ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.state.done:
		return nil, ErrClosed
	}
}

func (p *pipeConn) Write(data []byte) error {
	buf := append([]byte(nil), data...)
	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- buf:
		return nil
	case <-p.state.done:
		return ErrClosed
	}
}

func (p *pipeConn) Close() error {
	p.state.once.Do(func() { close(p.state.done) })
	return nil
}
