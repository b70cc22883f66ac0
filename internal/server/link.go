package server

import (
	"context"
	"sync"
	"time"

	"github.com/danmuck/cardtable/internal/observability"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/rs/zerolog/log"
)

// peerLink is the outbound half of one player connection: a bounded queue
// drained by a single writer goroutine. A full queue drops the peer instead
// of blocking the caller.
type peerLink struct {
	conn      *protocol.Conn
	queue     chan protocol.Packet
	done      chan struct{}
	closeOnce sync.Once
	heartbeat time.Duration
}

func newPeerLink(conn *protocol.Conn, queueSize int, heartbeat time.Duration) *peerLink {
	return &peerLink{
		conn:      conn,
		queue:     make(chan protocol.Packet, queueSize),
		done:      make(chan struct{}),
		heartbeat: heartbeat,
	}
}

func (l *peerLink) Deliver(p protocol.Packet) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- p:
		return true
	default:
		observability.RecordDroppedPeer()
		log.Warn().Str("remote", l.RemoteAddr()).Int("queued", len(l.queue)).Msg("outbound queue full, dropping peer")
		_ = l.Close()
		return false
	}
}

func (l *peerLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})
	return err
}

func (l *peerLink) RemoteAddr() string {
	return l.conn.RemoteAddr()
}

// run writes queued packets until the link closes. Idle links send a
// heartbeat every interval. A ConnectionEnd closes the link once written.
func (l *peerLink) run() {
	ticker := time.NewTicker(l.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case p := <-l.queue:
			if err := l.write(p); err != nil {
				log.Debug().Err(err).Str("remote", l.RemoteAddr()).Msg("peer write failed")
				_ = l.Close()
				return
			}
			if p.Type() == protocol.TypeConnectionEnd {
				_ = l.Close()
				return
			}
			ticker.Reset(l.heartbeat)
		case <-ticker.C:
			if err := l.write(protocol.Heartbeat{}); err != nil {
				log.Debug().Err(err).Str("remote", l.RemoteAddr()).Msg("heartbeat failed")
				_ = l.Close()
				return
			}
		}
	}
}

func (l *peerLink) write(p protocol.Packet) error {
	if err := l.conn.Send(context.Background(), p); err != nil {
		if protocol.KindOf(err) != protocol.KindSocketFailed {
			// Encoding problems are ours, not the peer's.
			log.Error().Err(err).Str("type", p.Type().String()).Msg("dropping unencodable packet")
			return nil
		}
		return err
	}
	observability.RecordPacket("out", p.Type().String())
	return nil
}
