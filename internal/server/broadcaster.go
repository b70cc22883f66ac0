package server

import (
	"github.com/danmuck/cardtable/internal/game"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/danmuck/cardtable/internal/registry"
	"github.com/rs/zerolog/log"
)

// Broadcaster fans packets out to the links held by the registry. Delivery
// only enqueues, so one slow peer never stalls the others.
type Broadcaster struct {
	reg *registry.Registry
}

func NewBroadcaster(reg *registry.Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// Broadcast delivers p to every online player or to one player id. It
// returns how many links accepted the packet.
func (b *Broadcaster) Broadcast(to game.Target, p protocol.Packet) int {
	if to.IsAll() {
		targets, err := b.reg.Online()
		if err != nil {
			log.Error().Err(err).Str("type", p.Type().String()).Msg("broadcast snapshot failed")
			return 0
		}
		n := 0
		for _, t := range targets {
			if t.Link.Deliver(p) {
				n++
			}
		}
		return n
	}
	link, err := b.reg.LinkOf(to.ID)
	if err != nil || link == nil {
		log.Debug().Uint32("player_id", to.ID).Str("type", p.Type().String()).Msg("no live link for packet")
		return 0
	}
	if link.Deliver(p) {
		return 1
	}
	return 0
}

// Emit satisfies game.Emitter.
func (b *Broadcaster) Emit(to game.Target, p protocol.Packet) {
	b.Broadcast(to, p)
}
