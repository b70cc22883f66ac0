package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/cardtable/internal/cards"
)

// Type is the numeric packet tag carried in the first frame.
type Type uint16

const (
	TypeJoin          Type = 0
	TypeJoinStatus    Type = 1
	TypeChatMessage   Type = 2
	TypeNewPlayerData Type = 3
	TypePlayerUpdate  Type = 4
	TypeActionUpdate  Type = 5
	TypeCardsUpdate   Type = 6
	TypeGameMessage   Type = 7
	TypeGameEnd       Type = 8
	TypeTurnUpdate    Type = 9
	TypeStartGame     Type = 10
	TypeHeartbeat     Type = 11
	// TypeConnectionEnd is the reserved sentinel for an orderly end of session.
	TypeConnectionEnd Type = 0xFFFF
)

func (t Type) String() string {
	switch t {
	case TypeJoin:
		return "join"
	case TypeJoinStatus:
		return "join_status"
	case TypeChatMessage:
		return "chat_message"
	case TypeNewPlayerData:
		return "new_player_data"
	case TypePlayerUpdate:
		return "player_update"
	case TypeActionUpdate:
		return "action_update"
	case TypeCardsUpdate:
		return "cards_update"
	case TypeGameMessage:
		return "game_message"
	case TypeGameEnd:
		return "game_end"
	case TypeTurnUpdate:
		return "turn_update"
	case TypeStartGame:
		return "start_game"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeConnectionEnd:
		return "connection_end"
	default:
		return fmt.Sprintf("type(%d)", uint16(t))
	}
}

const (
	MaxNameLen = 32
	MaxChatLen = 512
)

var errInvalidPacket = errors.New("invalid packet")

// Packet is one member of the packet catalog. Each implementation carries only
// the fields its tag allows.
type Packet interface {
	Type() Type
	Validate() error
}

func invalid(t Type, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", errInvalidPacket, t, fmt.Sprintf(format, args...))
}

// Personalization is the cosmetic choice a player makes at join time.
type Personalization struct {
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	Avatar         string `json:"avatar"`
}

// Credentials identify an existing session for a rejoin.
type Credentials struct {
	PlayerID   uint32 `json:"player_id"`
	AccessCode uint64 `json:"access_code,string"`
}

// Join is the first packet a client sends. Rejoin is set to resume a
// previous identity.
type Join struct {
	Name            string          `json:"name"`
	Personalization Personalization `json:"personalization"`
	Rejoin          *Credentials    `json:"rejoin,omitempty"`
}

func (Join) Type() Type { return TypeJoin }

func (p Join) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return invalid(TypeJoin, "missing name")
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return invalid(TypeJoin, "name longer than %d", MaxNameLen)
	}
	return nil
}

// JoinReason explains a rejected join.
type JoinReason string

const (
	JoinGameInProgress     JoinReason = "game_in_progress"
	JoinInvalidCredentials JoinReason = "invalid_credentials"
	JoinInvalid            JoinReason = "invalid_join"
	JoinServerBusy         JoinReason = "server_busy"
)

// JoinStatus answers a Join. Accepted statuses carry credentials, rejected
// ones carry a reason.
type JoinStatus struct {
	Accepted    bool         `json:"accepted"`
	Credentials *Credentials `json:"credentials,omitempty"`
	Reason      JoinReason   `json:"reason,omitempty"`
}

// AcceptJoin builds an accepted status.
func AcceptJoin(id uint32, code uint64) JoinStatus {
	return JoinStatus{Accepted: true, Credentials: &Credentials{PlayerID: id, AccessCode: code}}
}

// RejectJoin builds a rejected status.
func RejectJoin(reason JoinReason) JoinStatus {
	return JoinStatus{Reason: reason}
}

func (JoinStatus) Type() Type { return TypeJoinStatus }

func (p JoinStatus) Validate() error {
	if p.Accepted {
		if p.Credentials == nil {
			return invalid(TypeJoinStatus, "accepted status without credentials")
		}
		if p.Reason != "" {
			return invalid(TypeJoinStatus, "accepted status with reason")
		}
		return nil
	}
	if p.Credentials != nil {
		return invalid(TypeJoinStatus, "rejected status with credentials")
	}
	if p.Reason == "" {
		return invalid(TypeJoinStatus, "rejected status without reason")
	}
	return nil
}

// ChatMessage is sent by clients without From; the server stamps From before
// fanning it out.
type ChatMessage struct {
	From *uint32 `json:"from,omitempty"`
	Text string  `json:"text"`
}

func (ChatMessage) Type() Type { return TypeChatMessage }

func (p ChatMessage) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return invalid(TypeChatMessage, "empty text")
	}
	if utf8.RuneCountInString(p.Text) > MaxChatLen {
		return invalid(TypeChatMessage, "text longer than %d", MaxChatLen)
	}
	return nil
}

// PlayerInfo is the public view of one player.
type PlayerInfo struct {
	ID              uint32          `json:"id"`
	Name            string          `json:"name"`
	Personalization Personalization `json:"personalization"`
	Online          bool            `json:"online"`
	HandSize        int             `json:"hand_size"`
}

// NewPlayerData announces a player that just joined.
type NewPlayerData struct {
	Player PlayerInfo `json:"player"`
}

func (NewPlayerData) Type() Type { return TypeNewPlayerData }

func (p NewPlayerData) Validate() error {
	if strings.TrimSpace(p.Player.Name) == "" {
		return invalid(TypeNewPlayerData, "missing player name")
	}
	return nil
}

// PlayerUpdate carries the full roster.
type PlayerUpdate struct {
	Phase   string       `json:"phase"`
	Players []PlayerInfo `json:"players"`
}

func (PlayerUpdate) Type() Type { return TypePlayerUpdate }

func (p PlayerUpdate) Validate() error {
	if p.Phase == "" {
		return invalid(TypePlayerUpdate, "missing phase")
	}
	if p.Players == nil {
		return invalid(TypePlayerUpdate, "missing players")
	}
	return nil
}

// Action names a turn action.
type Action string

const (
	ActionDraw      Action = "draw"
	ActionPlay      Action = "play"
	ActionCallBluff Action = "call_bluff"
	ActionPass      Action = "pass"
)

// ActionUpdate is a turn action from a client. Only ActionPlay carries a
// card id and optional chosen color.
type ActionUpdate struct {
	Action      Action       `json:"action"`
	CardID      *uint32      `json:"card_id,omitempty"`
	ChosenColor *cards.Color `json:"chosen_color,omitempty"`
}

func DrawAction() ActionUpdate      { return ActionUpdate{Action: ActionDraw} }
func CallBluffAction() ActionUpdate { return ActionUpdate{Action: ActionCallBluff} }
func PassAction() ActionUpdate      { return ActionUpdate{Action: ActionPass} }

// PlayAction builds a play; chosen may be nil for normal cards.
func PlayAction(cardID uint32, chosen *cards.Color) ActionUpdate {
	return ActionUpdate{Action: ActionPlay, CardID: &cardID, ChosenColor: chosen}
}

func (ActionUpdate) Type() Type { return TypeActionUpdate }

func (p ActionUpdate) Validate() error {
	switch p.Action {
	case ActionPlay:
		if p.CardID == nil {
			return invalid(TypeActionUpdate, "play without card_id")
		}
		if p.ChosenColor != nil && !p.ChosenColor.Valid() {
			return invalid(TypeActionUpdate, "invalid chosen_color %s", *p.ChosenColor)
		}
	case ActionDraw, ActionCallBluff, ActionPass:
		if p.CardID != nil || p.ChosenColor != nil {
			return invalid(TypeActionUpdate, "%s carries play fields", p.Action)
		}
	default:
		return invalid(TypeActionUpdate, "unknown action %q", p.Action)
	}
	return nil
}

// CardsUpdate is the private full hand of the receiving player.
type CardsUpdate struct {
	Hand []cards.Card `json:"hand"`
}

func (CardsUpdate) Type() Type { return TypeCardsUpdate }

func (p CardsUpdate) Validate() error {
	if p.Hand == nil {
		return invalid(TypeCardsUpdate, "missing hand")
	}
	return nil
}

// MessageLevel is the severity of a game message.
type MessageLevel string

const (
	LevelInfo  MessageLevel = "info"
	LevelError MessageLevel = "error"
)

// GameMessage is a notice from the rule engine. Error messages always carry
// a reason code.
type GameMessage struct {
	Level  MessageLevel `json:"level"`
	Reason string       `json:"reason,omitempty"`
	Text   string       `json:"text"`
}

func (GameMessage) Type() Type { return TypeGameMessage }

func (p GameMessage) Validate() error {
	switch p.Level {
	case LevelInfo:
	case LevelError:
		if p.Reason == "" {
			return invalid(TypeGameMessage, "error without reason")
		}
	default:
		return invalid(TypeGameMessage, "unknown level %q", p.Level)
	}
	if p.Text == "" {
		return invalid(TypeGameMessage, "empty text")
	}
	return nil
}

// Standing is one row of the final report, rank 1 first.
type Standing struct {
	Rank     int    `json:"rank"`
	PlayerID uint32 `json:"player_id"`
	Name     string `json:"name"`
}

// GameEnd closes a match with its standings.
type GameEnd struct {
	MatchID   string     `json:"match_id"`
	Standings []Standing `json:"standings"`
}

func (GameEnd) Type() Type { return TypeGameEnd }

func (p GameEnd) Validate() error {
	if p.MatchID == "" {
		return invalid(TypeGameEnd, "missing match_id")
	}
	for i, s := range p.Standings {
		if s.Rank != i+1 {
			return invalid(TypeGameEnd, "standings[%d] rank %d", i, s.Rank)
		}
	}
	return nil
}

// Direction of turn rotation on the wire.
type Direction string

const (
	LeftToRight Direction = "left_to_right"
	RightToLeft Direction = "right_to_left"
)

// HandCount is one player's hand size.
type HandCount struct {
	PlayerID uint32 `json:"player_id"`
	Count    int    `json:"count"`
}

// TurnUpdate is the public turn state after every accepted action.
type TurnUpdate struct {
	MatchID       string      `json:"match_id"`
	TableCard     cards.Card  `json:"table_card"`
	ActiveColor   cards.Color `json:"active_color"`
	Direction     Direction   `json:"direction"`
	CurrentPlayer uint32      `json:"current_player"`
	HandSizes     []HandCount `json:"hand_sizes"`
	PendingDraw   *int        `json:"pending_draw,omitempty"`
	BluffCallable bool        `json:"bluff_callable,omitempty"`
}

func (TurnUpdate) Type() Type { return TypeTurnUpdate }

func (p TurnUpdate) Validate() error {
	if p.MatchID == "" {
		return invalid(TypeTurnUpdate, "missing match_id")
	}
	if !p.ActiveColor.Valid() {
		return invalid(TypeTurnUpdate, "invalid active_color")
	}
	if p.Direction != LeftToRight && p.Direction != RightToLeft {
		return invalid(TypeTurnUpdate, "invalid direction %q", p.Direction)
	}
	if p.BluffCallable && p.PendingDraw == nil {
		return invalid(TypeTurnUpdate, "bluff callable without pending draw")
	}
	return p.TableCard.Validate()
}

// StartGame asks the server to start the match.
type StartGame struct{}

func (StartGame) Type() Type      { return TypeStartGame }
func (StartGame) Validate() error { return nil }

// Heartbeat keeps an idle session inside its read deadline.
type Heartbeat struct{}

func (Heartbeat) Type() Type      { return TypeHeartbeat }
func (Heartbeat) Validate() error { return nil }

// ConnectionEnd ends a session in order. Abandon gives up the identity for
// good; otherwise the server keeps it for a rejoin.
type ConnectionEnd struct {
	Reason  string `json:"reason,omitempty"`
	Abandon bool   `json:"abandon,omitempty"`
}

func (ConnectionEnd) Type() Type      { return TypeConnectionEnd }
func (ConnectionEnd) Validate() error { return nil }

// Unsupported is what Decode yields for a tag outside the catalog so that
// readers can log and skip it.
type Unsupported struct {
	Tag     Type
	Payload []byte
}

func (p Unsupported) Type() Type { return p.Tag }

func (p Unsupported) Validate() error {
	return invalid(p.Tag, "unsupported packet type")
}
