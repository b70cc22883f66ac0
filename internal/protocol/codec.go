package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/danmuck/cardtable/internal/protocol/frame"
)

var factories = map[Type]func() Packet{
	TypeJoin:          func() Packet { return &Join{} },
	TypeJoinStatus:    func() Packet { return &JoinStatus{} },
	TypeChatMessage:   func() Packet { return &ChatMessage{} },
	TypeNewPlayerData: func() Packet { return &NewPlayerData{} },
	TypePlayerUpdate:  func() Packet { return &PlayerUpdate{} },
	TypeActionUpdate:  func() Packet { return &ActionUpdate{} },
	TypeCardsUpdate:   func() Packet { return &CardsUpdate{} },
	TypeGameMessage:   func() Packet { return &GameMessage{} },
	TypeGameEnd:       func() Packet { return &GameEnd{} },
	TypeTurnUpdate:    func() Packet { return &TurnUpdate{} },
	TypeStartGame:     func() Packet { return &StartGame{} },
	TypeHeartbeat:     func() Packet { return &Heartbeat{} },
	TypeConnectionEnd: func() Packet { return &ConnectionEnd{} },
}

// Known reports whether t is part of the catalog.
func Known(t Type) bool {
	_, ok := factories[t]
	return ok
}

// Encode validates p and renders its two frames.
func Encode(p Packet) (frame.Raw, error) {
	if p == nil {
		return frame.Raw{}, newError(KindInvalidArgument, "encode", fmt.Errorf("nil packet"))
	}
	t := p.Type()
	if !Known(t) {
		return frame.Raw{}, newError(KindEncodingFailed, "encode", fmt.Errorf("type %d is not in the catalog", uint16(t)))
	}
	if err := p.Validate(); err != nil {
		return frame.Raw{}, newError(KindInvalidArgument, "encode "+t.String(), err)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return frame.Raw{}, newError(KindSerializationFailed, "encode "+t.String(), err)
	}
	if len(payload) > frame.MaxFrameLen {
		return frame.Raw{}, newError(KindPacketTooBig, "encode "+t.String(), fmt.Errorf("payload %d bytes", len(payload)))
	}
	return frame.Raw{Type: []byte(strconv.FormatUint(uint64(t), 10)), Payload: payload}, nil
}

// Marshal encodes p into its complete wire form.
func Marshal(p Packet) ([]byte, error) {
	raw, err := Encode(p)
	if err != nil {
		return nil, err
	}
	buf, err := frame.EncodeRaw(raw)
	if err != nil {
		return nil, newError(KindPacketTooBig, "marshal", err)
	}
	return buf, nil
}

// ParseType decodes the type frame.
func ParseType(b []byte) (Type, error) {
	if !utf8.Valid(b) {
		return 0, newError(KindDecodingFailed, "parse type", fmt.Errorf("type frame is not utf-8"))
	}
	v, err := strconv.ParseUint(string(b), 10, 16)
	if err != nil {
		return 0, newError(KindDecodingFailed, "parse type", err)
	}
	return Type(v), nil
}

// Decode turns one raw packet into its catalog type. Tags outside the catalog
// decode to Unsupported without error.
func Decode(raw frame.Raw) (Packet, error) {
	t, err := ParseType(raw.Type)
	if err != nil {
		return nil, err
	}
	factory, ok := factories[t]
	if !ok {
		return Unsupported{Tag: t, Payload: raw.Payload}, nil
	}
	ptr := factory()
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, ptr); err != nil {
			return nil, newError(KindDeserializationFailed, "decode "+t.String(), err)
		}
	}
	p := deref(ptr)
	if err := p.Validate(); err != nil {
		return nil, newError(KindDeserializationFailed, "decode "+t.String(), err)
	}
	return p, nil
}

func deref(p Packet) Packet {
	switch v := p.(type) {
	case *Join:
		return *v
	case *JoinStatus:
		return *v
	case *ChatMessage:
		return *v
	case *NewPlayerData:
		return *v
	case *PlayerUpdate:
		return *v
	case *ActionUpdate:
		return *v
	case *CardsUpdate:
		return *v
	case *GameMessage:
		return *v
	case *GameEnd:
		return *v
	case *TurnUpdate:
		return *v
	case *StartGame:
		return *v
	case *Heartbeat:
		return *v
	case *ConnectionEnd:
		return *v
	default:
		return p
	}
}
