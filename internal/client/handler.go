package client

import (
	"github.com/danmuck/cardtable/internal/cards"
	"github.com/danmuck/cardtable/internal/protocol"
)

// Handler consumes the session's event stream. Methods are called from the
// receive loop one at a time and should return quickly.
type Handler interface {
	OnChat(msg protocol.ChatMessage)
	OnPlayerJoined(p protocol.PlayerInfo)
	OnPlayers(update protocol.PlayerUpdate)
	OnHand(hand []cards.Card)
	OnTurn(turn protocol.TurnUpdate)
	OnGameMessage(msg protocol.GameMessage)
	OnGameEnd(end protocol.GameEnd)
	// OnClosed runs once after the loop stops. err is nil after a local
	// Close and wraps ErrServerEnded when the server ended the session.
	OnClosed(err error)
}

// NopHandler ignores every event. Embed it to implement only some methods.
type NopHandler struct{}

func (NopHandler) OnChat(protocol.ChatMessage)        {}
func (NopHandler) OnPlayerJoined(protocol.PlayerInfo) {}
func (NopHandler) OnPlayers(protocol.PlayerUpdate)    {}
func (NopHandler) OnHand([]cards.Card)                {}
func (NopHandler) OnTurn(protocol.TurnUpdate)         {}
func (NopHandler) OnGameMessage(protocol.GameMessage) {}
func (NopHandler) OnGameEnd(protocol.GameEnd)         {}
func (NopHandler) OnClosed(error)                     {}
