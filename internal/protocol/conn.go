package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/cardtable/internal/protocol/frame"
)

// Conn sends and receives packets over one stream connection. Sends are
// serialized so the two frames of a packet are never interleaved with another
// send; receives are expected from a single reader.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader

	sendMu sync.Mutex
	recvMu sync.Mutex

	mu           sync.Mutex
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps c. Zero timeouts disable the matching deadline.
func NewConn(c net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		conn:         c,
		reader:       bufio.NewReader(c),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// SetReadTimeout changes the deadline applied to each following Receive.
func (c *Conn) SetReadTimeout(d time.Duration) {
	c.mu.Lock()
	c.readTimeout = d
	c.mu.Unlock()
}

func (c *Conn) timeouts() (time.Duration, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readTimeout, c.writeTimeout
}

func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Send writes p as one logical operation.
func (c *Conn) Send(ctx context.Context, p Packet) error {
	buf, err := Marshal(p)
	if err != nil {
		return err
	}
	return c.SendRaw(ctx, buf)
}

// SendRaw writes an already marshaled packet.
func (c *Conn) SendRaw(ctx context.Context, buf []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	_, writeTimeout := c.timeouts()
	if err := c.conn.SetWriteDeadline(deadline(ctx, writeTimeout)); err != nil {
		return newError(KindSocketFailed, "send", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Now())
	})
	defer stop()
	if _, err := c.conn.Write(buf); err != nil {
		return newError(KindSocketFailed, "send", contextCause(ctx, err))
	}
	return nil
}

// Receive blocks until one full packet arrives, the read deadline passes, ctx
// ends or the connection fails.
func (c *Conn) Receive(ctx context.Context) (Packet, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	readTimeout, _ := c.timeouts()
	if err := c.conn.SetReadDeadline(deadline(ctx, readTimeout)); err != nil {
		return nil, newError(KindSocketFailed, "receive", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	raw, err := frame.ReadRaw(c.reader)
	if err != nil {
		return nil, newError(KindSocketFailed, "receive", contextCause(ctx, err))
	}
	return Decode(raw)
}

// ReceiveAs receives one packet and requires it to be a T.
func ReceiveAs[T Packet](ctx context.Context, c *Conn) (T, error) {
	var zero T
	p, err := c.Receive(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := p.(T)
	if !ok {
		return zero, newError(KindDeserializationFailed, "receive", fmt.Errorf("want %s, got %s", zero.Type(), p.Type()))
	}
	return v, nil
}

func deadline(ctx context.Context, d time.Duration) time.Time {
	var out time.Time
	if d > 0 {
		out = time.Now().Add(d)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (out.IsZero() || ctxDeadline.Before(out)) {
		out = ctxDeadline
	}
	return out
}

func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	// The socket deadline can fire a moment before the context timer does.
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

// IsTimeout reports whether err came from an expired connection deadline.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
