package registry

import (
	"cmp"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/danmuck/cardtable/internal/cards"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrGameInProgress     = errors.New("registry: game in progress")
	ErrInvalidCredentials = errors.New("registry: invalid credentials")
	ErrInvalidJoin        = errors.New("registry: invalid join")
	ErrUnknownPlayer      = errors.New("registry: unknown player")
	ErrLockTimeout        = errors.New("registry: lock timeout")
)

// Link is the outbound side of a player's live connection.
type Link interface {
	// Deliver queues p without blocking and reports whether it was accepted.
	Deliver(p protocol.Packet) bool
	Close() error
	RemoteAddr() string
}

// Player is the public, copyable view of one registered player.
type Player struct {
	ID              uint32
	Name            string
	Personalization protocol.Personalization
	Online          bool
	HandSize        int
	OfflineSince    time.Time
}

// Info converts p to its wire shape.
func (p Player) Info() protocol.PlayerInfo {
	return protocol.PlayerInfo{
		ID:              p.ID,
		Name:            p.Name,
		Personalization: p.Personalization,
		Online:          p.Online,
		HandSize:        p.HandSize,
	}
}

// Target pairs an online player with their link.
type Target struct {
	ID   uint32
	Link Link
}

// session is the server-only state behind one player id.
type session struct {
	player     Player
	hand       *cards.Deck
	accessCode uint64
	link       Link
}

func (s *session) snapshot() Player {
	p := s.player
	p.HandSize = s.hand.Len()
	return p
}

// Registry owns every player session. All access goes through one lock whose
// acquisition is bounded by a timeout; the lock is never held across I/O.
type Registry struct {
	lock    chan struct{}
	timeout time.Duration
	gen     *cards.Generator

	nextID    uint32
	sessions  map[uint32]*session
	abandoned map[uint32]struct{}
	newCode   func() (uint64, error)
}

// New returns an empty registry. Lock waits are bounded by timeout.
func New(gen *cards.Generator, timeout time.Duration) *Registry {
	if gen == nil {
		gen = cards.NewGenerator()
	}
	return &Registry{
		lock:      make(chan struct{}, 1),
		timeout:   timeout,
		gen:       gen,
		sessions:  make(map[uint32]*session),
		abandoned: make(map[uint32]struct{}),
		newCode:   randomAccessCode,
	}
}

func (r *Registry) acquire() error {
	if r.timeout <= 0 {
		r.lock <- struct{}{}
		return nil
	}
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case r.lock <- struct{}{}:
		return nil
	case <-timer.C:
		log.Error().Dur("timeout", r.timeout).Msg("registry lock acquisition timed out")
		return ErrLockTimeout
	}
}

func (r *Registry) release() {
	<-r.lock
}

// Join registers a new player with a fresh id, access code and hand. The
// accepted JoinStatus is queued on link before any other packet can be.
func (r *Registry) Join(req protocol.Join, link Link) (Player, uint64, error) {
	persona, err := normalizePersonalization(req.Personalization)
	if err != nil {
		return Player{}, 0, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Player{}, 0, fmt.Errorf("%w: missing name", ErrInvalidJoin)
	}
	code, err := r.newCode()
	if err != nil {
		return Player{}, 0, fmt.Errorf("registry: access code: %w", err)
	}
	hand := cards.NewHand(r.gen)

	if err := r.acquire(); err != nil {
		return Player{}, 0, err
	}
	defer r.release()
	id := r.nextID
	r.nextID++
	s := &session{
		player: Player{
			ID:              id,
			Name:            name,
			Personalization: persona,
			Online:          link != nil,
		},
		hand:       hand,
		accessCode: code,
		link:       link,
	}
	// The status must be queued before broadcasts can find the link.
	if link != nil {
		link.Deliver(protocol.AcceptJoin(id, code))
	}
	r.sessions[id] = s
	return s.snapshot(), code, nil
}

// Rejoin restores a retained session and swaps in link, queueing the
// accepted JoinStatus on it first. Every failure is reported as
// ErrInvalidCredentials.
func (r *Registry) Rejoin(creds protocol.Credentials, link Link) (Player, error) {
	if err := r.acquire(); err != nil {
		return Player{}, err
	}
	s, ok := r.sessions[creds.PlayerID]
	if !ok || !codesEqual(s.accessCode, creds.AccessCode) {
		r.release()
		return Player{}, ErrInvalidCredentials
	}
	if link != nil {
		link.Deliver(protocol.AcceptJoin(s.player.ID, s.accessCode))
	}
	old := s.link
	s.link = link
	s.player.Online = link != nil
	s.player.OfflineSince = time.Time{}
	p := s.snapshot()
	r.release()

	if old != nil && old != link {
		_ = old.Close()
	}
	return p, nil
}

// Abandon removes id for good. Later rejoins with it fail.
func (r *Registry) Abandon(id uint32) (Player, error) {
	if err := r.acquire(); err != nil {
		return Player{}, err
	}
	s, ok := r.sessions[id]
	if !ok {
		r.release()
		return Player{}, ErrUnknownPlayer
	}
	delete(r.sessions, id)
	r.abandoned[id] = struct{}{}
	old := s.link
	p := s.snapshot()
	r.release()

	if old != nil {
		_ = old.Close()
	}
	p.Online = false
	return p, nil
}

// Disconnect marks id offline if link is still its current link. The hand
// and access code are kept for a rejoin.
func (r *Registry) Disconnect(id uint32, link Link, at time.Time) (bool, error) {
	if err := r.acquire(); err != nil {
		return false, err
	}
	defer r.release()
	s, ok := r.sessions[id]
	if !ok || s.link == nil || s.link != link {
		return false, nil
	}
	s.link = nil
	s.player.Online = false
	s.player.OfflineSince = at
	return true, nil
}

// WasAbandoned reports whether id was removed by Abandon.
func (r *Registry) WasAbandoned(id uint32) (bool, error) {
	if err := r.acquire(); err != nil {
		return false, err
	}
	defer r.release()
	_, ok := r.abandoned[id]
	return ok, nil
}

func (r *Registry) Lookup(id uint32) (Player, error) {
	if err := r.acquire(); err != nil {
		return Player{}, err
	}
	defer r.release()
	s, ok := r.sessions[id]
	if !ok {
		return Player{}, ErrUnknownPlayer
	}
	return s.snapshot(), nil
}

// LinkOf returns the live link of id, or nil when offline.
func (r *Registry) LinkOf(id uint32) (Link, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	return s.link, nil
}

// Snapshot returns every registered player ordered by id.
func (r *Registry) Snapshot() ([]Player, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	out := make([]Player, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	r.release()
	slices.SortFunc(out, func(a, b Player) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Online returns the links of every online player ordered by id.
func (r *Registry) Online() ([]Target, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	out := make([]Target, 0, len(r.sessions))
	for id, s := range r.sessions {
		if s.link != nil {
			out = append(out, Target{ID: id, Link: s.link})
		}
	}
	r.release()
	slices.SortFunc(out, func(a, b Target) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *Registry) Count() (int, error) {
	if err := r.acquire(); err != nil {
		return 0, err
	}
	defer r.release()
	return len(r.sessions), nil
}

// Hand returns a copy of id's hand.
func (r *Registry) Hand(id uint32) ([]cards.Card, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	return s.hand.Cards(), nil
}

// UpdateHand runs fn on id's hand under the registry lock. fn must not block.
func (r *Registry) UpdateHand(id uint32, fn func(*cards.Deck)) error {
	if err := r.acquire(); err != nil {
		return err
	}
	defer r.release()
	s, ok := r.sessions[id]
	if !ok {
		return ErrUnknownPlayer
	}
	fn(s.hand)
	return nil
}

// DealAll replaces every hand with a fresh starting hand.
func (r *Registry) DealAll() error {
	if err := r.acquire(); err != nil {
		return err
	}
	defer r.release()
	for _, s := range r.sessions {
		s.hand = cards.NewHand(r.gen)
	}
	return nil
}

// Expired lists offline players whose retention window has passed.
func (r *Registry) Expired(retention time.Duration, now time.Time) ([]uint32, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()
	out := make([]uint32, 0)
	for id, s := range r.sessions {
		if s.link != nil || s.player.OfflineSince.IsZero() {
			continue
		}
		if now.Sub(s.player.OfflineSince) >= retention {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

// CloseAll drops every live link and marks all players offline.
func (r *Registry) CloseAll(at time.Time) error {
	if err := r.acquire(); err != nil {
		return err
	}
	links := make([]Link, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.link == nil {
			continue
		}
		links = append(links, s.link)
		s.link = nil
		s.player.Online = false
		s.player.OfflineSince = at
	}
	r.release()
	for _, l := range links {
		_ = l.Close()
	}
	return nil
}

func randomAccessCode() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func codesEqual(a, b uint64) bool {
	var ab, bb [8]byte
	binary.BigEndian.PutUint64(ab[:], a)
	binary.BigEndian.PutUint64(bb[:], b)
	return subtle.ConstantTimeCompare(ab[:], bb[:]) == 1
}
