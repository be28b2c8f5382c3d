package testutils

import (
	"context"
	"io"
	"sync"

	"github.com/go-ble/ble"
)

// BLEConn is a ble.Conn that only carries the central's address.
type BLEConn struct {
	mu           sync.Mutex
	ctx          context.Context
	remote       ble.Addr
	rxMTU, txMTU int
	disconnected chan struct{}
}

// NewBLEConn creates a connection from the central at address.
func NewBLEConn(address string) *BLEConn {
	return &BLEConn{
		ctx:          context.Background(),
		remote:       ble.NewAddr(address),
		rxMTU:        ble.DefaultMTU,
		txMTU:        ble.DefaultMTU,
		disconnected: make(chan struct{}),
	}
}

func (c *BLEConn) Read([]byte) (int, error)    { return 0, io.EOF }
func (c *BLEConn) Write(b []byte) (int, error) { return len(b), nil }
func (c *BLEConn) LocalAddr() ble.Addr         { return ble.NewAddr("00:00:00:00:00:00") }
func (c *BLEConn) RemoteAddr() ble.Addr        { return c.remote }
func (c *BLEConn) ReadRSSI() int               { return -50 }

func (c *BLEConn) Context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *BLEConn) SetContext(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

func (c *BLEConn) RxMTU() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rxMTU
}

func (c *BLEConn) SetRxMTU(mtu int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rxMTU = mtu
}

func (c *BLEConn) TxMTU() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txMTU
}

func (c *BLEConn) SetTxMTU(mtu int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txMTU = mtu
}

func (c *BLEConn) Disconnected() <-chan struct{} { return c.disconnected }

// Close disconnects the central.
func (c *BLEConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.disconnected:
	default:
		close(c.disconnected)
	}
	return nil
}

// BLERequest is a ble.Request. Connection may be nil for connectionless sessions.
type BLERequest struct {
	Connection ble.Conn
	Payload    []byte
	Off        int
}

func (r *BLERequest) Conn() ble.Conn { return r.Connection }
func (r *BLERequest) Data() []byte   { return r.Payload }
func (r *BLERequest) Offset() int    { return r.Off }

// BLEResponse records what a read handler answered.
type BLEResponse struct {
	Capacity int
	Body     []byte
	status   ble.ATTError
}

// NewBLEResponse creates a response buffer with the given capacity.
func NewBLEResponse(capacity int) *BLEResponse {
	return &BLEResponse{Capacity: capacity}
}

func (r *BLEResponse) Write(b []byte) (int, error) {
	if len(r.Body)+len(b) > r.Capacity {
		return 0, ble.ErrInvalAttrValueLen
	}
	r.Body = append(r.Body, b...)
	return len(b), nil
}

func (r *BLEResponse) Status() ble.ATTError          { return r.status }
func (r *BLEResponse) SetStatus(status ble.ATTError) { r.status = status }
func (r *BLEResponse) Len() int                      { return len(r.Body) }
func (r *BLEResponse) Cap() int                      { return r.Capacity }

// BLENotifier is a ble.Notifier that records writes until closed.
type BLENotifier struct {
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	capacity int
	writes   [][]byte
	WriteErr error
}

// NewBLENotifier creates an open notifier session.
func NewBLENotifier(capacity int) *BLENotifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &BLENotifier{ctx: ctx, cancel: cancel, capacity: capacity}
}

func (n *BLENotifier) Context() context.Context { return n.ctx }

func (n *BLENotifier) Write(b []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.WriteErr != nil {
		return 0, n.WriteErr
	}
	n.writes = append(n.writes, append([]byte(nil), b...))
	return len(b), nil
}

// Close ends the session as a central unsubscribing would.
func (n *BLENotifier) Close() error {
	n.cancel()
	return nil
}

func (n *BLENotifier) Cap() int { return n.capacity }

// Writes returns copies of every value written so far.
func (n *BLENotifier) Writes() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([][]byte, len(n.writes))
	copy(out, n.writes)
	return out
}
