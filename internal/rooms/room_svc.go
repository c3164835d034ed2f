package rooms

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/juhoohuj/triviacircle-backend/internal/mirror"
	"github.com/juhoohuj/triviacircle-backend/pkg/metrics"
)

type MemberDTO struct {
	Username     string `json:"username"`
	Captain      bool   `json:"captain"`
	ConnectionID string `json:"connectionId,omitempty"`
	Score        int    `json:"score"`
	AnswerOrder  int    `json:"answerOrder"`
	Active       bool   `json:"active"`
}

type RoomDTO struct {
	RoomID string      `json:"roomId"`
	Users  []MemberDTO `json:"users"`
}

// MemberPatch carries opaque game-progress updates; nil fields are left
// untouched.
type MemberPatch struct {
	Score       *int
	AnswerOrder *int
	Active      *bool
}

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrMemberNotFound = errors.New("member not found")
)

type IRoomService interface {
	CreateRoom(ctx context.Context, username, connectionID string) (string, error)
	// JoinRoom returns the room snapshot plus the connectionID displaced by a
	// same-username rejoin ("" when the name was free). An empty connectionID
	// argument is a connection-less join: it never displaces and leaves any
	// existing connection binding on the member intact.
	JoinRoom(ctx context.Context, roomID, username, connectionID string) (RoomDTO, string, error)
	LeaveRoom(ctx context.Context, roomID, username string) error
	UpdateMember(ctx context.Context, roomID, username string, patch MemberPatch) error
	GetRoom(ctx context.Context, roomID string) (RoomDTO, error)
	ListRooms(ctx context.Context) ([]RoomDTO, error)
}

// Mirror is the write-behind durable copy; calls are fire-and-forget.
type Mirror interface {
	Put(roomID, username string, rec mirror.Record)
	Delete(roomID, username string)
}

type member struct {
	username     string
	captain      bool
	connectionID string
	score        int
	answerOrder  int
	active       bool
}

type roomState struct {
	mu      sync.Mutex
	id      string
	members map[string]*member
	// gone marks a room deleted from the table; set under mu so a join that
	// raced the deletion can detect it and retry the lookup.
	gone bool
}

type roomService struct {
	mu               sync.RWMutex
	rooms            map[string]*roomState
	deleteEmptyRooms bool
	mirror           Mirror
}

var _ IRoomService = (*roomService)(nil)

func NewRoomService(m Mirror, deleteEmptyRooms bool) IRoomService {
	return &roomService{
		rooms:            make(map[string]*roomState),
		deleteEmptyRooms: deleteEmptyRooms,
		mirror:           m,
	}
}

const (
	roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	roomIDLength   = 6
)

func newRoomID() string {
	b := make([]byte, roomIDLength)
	for i := range b {
		b[i] = roomIDAlphabet[rand.IntN(len(roomIDAlphabet))]
	}
	return string(b)
}

// CreateRoom makes a fresh room with username as sole member and captain.
// The id is regenerated on collision, so creation never fails.
func (svc *roomService) CreateRoom(_ context.Context, username, connectionID string) (string, error) {
	creator := member{
		username:     username,
		captain:      true,
		connectionID: connectionID,
		active:       true,
	}
	stored := creator
	r := &roomState{members: map[string]*member{username: &stored}}

	svc.mu.Lock()
	for {
		id := newRoomID()
		if _, taken := svc.rooms[id]; taken {
			continue
		}
		r.id = id
		svc.rooms[id] = r
		break
	}
	svc.mu.Unlock()

	metrics.RoomsCreated.Inc()
	svc.mirrorPut(r.id, &creator)
	return r.id, nil
}

// JoinRoom adds or overwrites the member (last join wins; an existing captain
// flag survives the rejoin) and returns the room snapshot.
func (svc *roomService) JoinRoom(_ context.Context, roomID, username, connectionID string) (RoomDTO, string, error) {
	for {
		r, ok := svc.lookup(roomID)
		if !ok {
			return RoomDTO{}, "", ErrRoomNotFound
		}

		r.mu.Lock()
		if r.gone {
			// Lost the race against empty-room deletion; the table may have
			// a fresh room under the same id.
			r.mu.Unlock()
			continue
		}
		m := &member{
			username:     username,
			connectionID: connectionID,
			active:       true,
		}
		var displaced string
		if prev, rejoining := r.members[username]; rejoining {
			m.captain = prev.captain
			switch {
			case connectionID == "":
				// A join without a socket refreshes membership but cannot
				// take over or displace the live connection.
				m.connectionID = prev.connectionID
			case prev.connectionID != connectionID:
				displaced = prev.connectionID
			}
		}
		r.members[username] = m
		snap := *m
		dto := snapshotLocked(r)
		r.mu.Unlock()

		svc.mirrorPut(roomID, &snap)
		return dto, displaced, nil
	}
}

// LeaveRoom removes the member. Absent rooms and absent members are no-ops,
// which makes the disconnect path safe to run after an explicit leave.
func (svc *roomService) LeaveRoom(_ context.Context, roomID, username string) error {
	r, ok := svc.lookup(roomID)
	if !ok {
		return nil
	}

	r.mu.Lock()
	if r.gone {
		r.mu.Unlock()
		return nil
	}
	if _, present := r.members[username]; !present {
		r.mu.Unlock()
		return nil
	}
	delete(r.members, username)
	empty := len(r.members) == 0
	if empty && svc.deleteEmptyRooms {
		r.gone = true
	}
	r.mu.Unlock()

	if svc.mirror != nil {
		svc.mirror.Delete(roomID, username)
	}

	if empty && svc.deleteEmptyRooms {
		svc.mu.Lock()
		if svc.rooms[roomID] == r {
			delete(svc.rooms, roomID)
		}
		svc.mu.Unlock()
		metrics.RoomsDeleted.Inc()
	}
	return nil
}

func (svc *roomService) UpdateMember(_ context.Context, roomID, username string, patch MemberPatch) error {
	r, ok := svc.lookup(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if r.gone {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	m, present := r.members[username]
	if !present {
		r.mu.Unlock()
		return ErrMemberNotFound
	}
	if patch.Score != nil {
		m.score = *patch.Score
	}
	if patch.AnswerOrder != nil {
		m.answerOrder = *patch.AnswerOrder
	}
	if patch.Active != nil {
		m.active = *patch.Active
	}
	snap := *m
	r.mu.Unlock()

	svc.mirrorPut(roomID, &snap)
	return nil
}

func (svc *roomService) GetRoom(_ context.Context, roomID string) (RoomDTO, error) {
	r, ok := svc.lookup(roomID)
	if !ok {
		return RoomDTO{}, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone {
		return RoomDTO{}, ErrRoomNotFound
	}
	return snapshotLocked(r), nil
}

// ListRooms returns a point-in-time snapshot of every room, ordered by id.
// The table lock is held across the walk so no room appears half-deleted;
// mutators never nest the table lock inside a room lock, so this cannot
// deadlock.
func (svc *roomService) ListRooms(_ context.Context) ([]RoomDTO, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	list := make([]RoomDTO, 0, len(svc.rooms))
	for _, r := range svc.rooms {
		r.mu.Lock()
		if !r.gone {
			list = append(list, snapshotLocked(r))
		}
		r.mu.Unlock()
	}
	sort.Slice(list, func(i, j int) bool { return list[i].RoomID < list[j].RoomID })
	return list, nil
}

func (svc *roomService) lookup(roomID string) (*roomState, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	r, ok := svc.rooms[roomID]
	return r, ok
}

func (svc *roomService) mirrorPut(roomID string, m *member) {
	if svc.mirror == nil {
		return
	}
	svc.mirror.Put(roomID, m.username, mirror.Record{
		Username:     m.username,
		Captain:      m.captain,
		ConnectionID: m.connectionID,
		Score:        m.score,
		AnswerOrder:  m.answerOrder,
		Active:       m.active,
	})
}

func snapshotLocked(r *roomState) RoomDTO {
	dto := RoomDTO{RoomID: r.id, Users: make([]MemberDTO, 0, len(r.members))}
	for _, m := range r.members {
		dto.Users = append(dto.Users, MemberDTO{
			Username:     m.username,
			Captain:      m.captain,
			ConnectionID: m.connectionID,
			Score:        m.score,
			AnswerOrder:  m.answerOrder,
			Active:       m.active,
		})
	}
	sort.Slice(dto.Users, func(i, j int) bool { return dto.Users[i].Username < dto.Users[j].Username })
	return dto
}
