package inmemory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/repository/room"
	"golang.org/x/exp/maps"
)

type entry struct {
	mu          sync.Mutex
	room        *domain.Room
	deleted     bool
	deleteTimer *clock.Timer
	timerGen    int
}

type Config struct {
	// EmptyTTL is how long a room without members survives.
	EmptyTTL time.Duration
	// InactivityTTL is how long a room survives without state changes.
	InactivityTTL time.Duration
}

type repo struct {
	rooms         map[string]*entry
	mu            sync.RWMutex
	clock         clock.Clock
	emptyTTL      time.Duration
	inactivityTTL time.Duration
}

func NewRepo(clk clock.Clock, cfg *Config) *repo {
	return &repo{
		rooms:         make(map[string]*entry),
		clock:         clk,
		emptyTTL:      cfg.EmptyTTL,
		inactivityTTL: cfg.InactivityTTL,
	}
}

// GetOrCreate stores the room built by newRoom unless roomId is taken and
// reports whether it was created.
func (r *repo) GetOrCreate(roomId string, newRoom func() *domain.Room) bool {
	funcName := "room.inmemory.GetOrCreate"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "room_id", roomId)
	if _, ok := r.rooms[roomId]; ok {
		slog.Debug(funcName, "result", "exists")
		return false
	}

	r.rooms[roomId] = &entry{room: newRoom()}

	slog.Debug(funcName, "result", "created")
	return true
}

func (r *repo) getEntry(roomId string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[roomId]
	return e, ok
}

// WithRoom runs fn with exclusive access to the room. The room must not be
// retained after fn returns. Deletion of an empty room is scheduled after
// EmptyTTL and cancelled as soon as fn leaves a member in it.
func (r *repo) WithRoom(roomId string, fn func(*domain.Room) error) error {
	funcName := "room.inmemory.WithRoom"
	e, ok := r.getEntry(roomId)
	if !ok {
		slog.Debug(funcName, "room_id", roomId, "error", room.ErrRoomNotFound)
		return room.ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		slog.Debug(funcName, "room_id", roomId, "error", room.ErrRoomNotFound)
		return room.ErrRoomNotFound
	}

	err := fn(e.room)
	r.updateDeletionLocked(e)

	return err
}

// WithRoomPair runs fn with exclusive access to roomId and, when it still
// exists, otherId. other is nil if otherId is empty, equal to roomId or gone.
// Both locks are taken in room id order.
func (r *repo) WithRoomPair(roomId, otherId string, fn func(rm, other *domain.Room) error) error {
	funcName := "room.inmemory.WithRoomPair"
	e, ok := r.getEntry(roomId)
	if !ok {
		slog.Debug(funcName, "room_id", roomId, "error", room.ErrRoomNotFound)
		return room.ErrRoomNotFound
	}

	var o *entry
	if otherId != "" && otherId != roomId {
		o, _ = r.getEntry(otherId)
	}

	locked := []*entry{e}
	if o != nil {
		if otherId < roomId {
			locked = []*entry{o, e}
		} else {
			locked = []*entry{e, o}
		}
	}
	for _, l := range locked {
		l.mu.Lock()
		defer l.mu.Unlock()
	}

	if e.deleted {
		slog.Debug(funcName, "room_id", roomId, "error", room.ErrRoomNotFound)
		return room.ErrRoomNotFound
	}

	var other *domain.Room
	if o != nil && !o.deleted {
		other = o.room
	}

	err := fn(e.room, other)
	r.updateDeletionLocked(e)
	if other != nil {
		r.updateDeletionLocked(o)
	}

	return err
}

func (r *repo) updateDeletionLocked(e *entry) {
	funcName := "room.inmemory.updateDeletion"
	if e.room.Members.Length() > 0 {
		if e.deleteTimer != nil {
			e.deleteTimer.Stop()
			e.deleteTimer = nil
			e.timerGen++
			slog.Debug(funcName, "room_id", e.room.Id, "result", "deletion cancelled")
		}
		return
	}

	if e.deleteTimer != nil {
		return
	}

	if r.emptyTTL <= 0 {
		r.deleteLocked(e)
		return
	}

	e.timerGen++
	gen := e.timerGen
	e.deleteTimer = r.clock.AfterFunc(r.emptyTTL, func() {
		r.expireEmpty(e, gen)
	})
	slog.Debug(funcName, "room_id", e.room.Id, "result", "deletion scheduled", "after", r.emptyTTL)
}

func (r *repo) expireEmpty(e *entry, gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted || e.timerGen != gen || e.room.Members.Length() > 0 {
		return
	}

	slog.Info("room deleted after grace period", "room_id", e.room.Id)
	r.deleteLocked(e)
}

// deleteLocked must be called with e.mu held.
func (r *repo) deleteLocked(e *entry) {
	e.deleted = true
	if e.deleteTimer != nil {
		e.deleteTimer.Stop()
		e.deleteTimer = nil
	}

	r.mu.Lock()
	if r.rooms[e.room.Id] == e {
		delete(r.rooms, e.room.Id)
	}
	r.mu.Unlock()
}

func (r *repo) Delete(roomId string) error {
	funcName := "room.inmemory.Delete"
	e, ok := r.getEntry(roomId)
	if !ok {
		slog.Debug(funcName, "room_id", roomId, "error", room.ErrRoomNotFound)
		return room.ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return room.ErrRoomNotFound
	}

	r.deleteLocked(e)
	slog.Debug(funcName, "room_id", roomId, "result", "OK")
	return nil
}

func (r *repo) Exists(roomId string) bool {
	e, ok := r.getEntry(roomId)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.deleted
}

func (r *repo) PendingDeletion(roomId string) bool {
	e, ok := r.getEntry(roomId)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.deleted && e.deleteTimer != nil
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// Sweep deletes rooms with no state change for InactivityTTL.
func (r *repo) Sweep() []room.Expired {
	funcName := "room.inmemory.Sweep"
	r.mu.RLock()
	entries := maps.Values(r.rooms)
	r.mu.RUnlock()

	now := r.clock.Now()
	var expired []room.Expired
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted && r.inactivityTTL > 0 && now.Sub(e.room.LastActivityAt) > r.inactivityTTL {
			expired = append(expired, room.Expired{
				RoomId:    e.room.Id,
				MemberIds: e.room.Members.Ids(),
			})
			r.deleteLocked(e)
		}
		e.mu.Unlock()
	}

	slog.Debug(funcName, "checked", len(entries), "expired", len(expired))
	return expired
}
