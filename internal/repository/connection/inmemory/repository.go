package inmemory

import (
	"log/slog"
	"sync"

	"github.com/sharetube/syncroom/internal/repository/connection"
)

type repo struct {
	conns map[string]connection.Conn
	mu    sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		conns: make(map[string]connection.Conn),
	}
}

func (r *repo) Add(memberId string, conn connection.Conn) error {
	funcName := "connection.inmemory.Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "member_id", memberId)
	if _, ok := r.conns[memberId]; ok {
		slog.Info(funcName, "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	r.conns[memberId] = conn

	slog.Debug(funcName, "result", "OK")
	return nil
}

func (r *repo) Remove(memberId string) (connection.Conn, error) {
	funcName := "connection.inmemory.Remove"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "member_id", memberId)
	conn, ok := r.conns[memberId]
	if !ok {
		slog.Debug(funcName, "error", connection.ErrNotFound)
		return nil, connection.ErrNotFound
	}

	delete(r.conns, memberId)

	slog.Debug(funcName, "result", "OK")
	return conn, nil
}

func (r *repo) Get(memberId string) (connection.Conn, error) {
	funcName := "connection.inmemory.Get"
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[memberId]
	if !ok {
		slog.Debug(funcName, "member_id", memberId, "error", connection.ErrNotFound)
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
