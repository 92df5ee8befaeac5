package domain

import (
	"errors"
	"time"
)

var (
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberAlreadyExists = errors.New("member already exists")
	ErrMembersLimitReached = errors.New("members limit reached")
)

type Member struct {
	Id       string
	Name     string
	IsHost   bool
	IsReady  bool
	SkipVote bool
	JoinedAt time.Time
}

type Members struct {
	list  []Member
	limit int
}

func NewMembers(limit int) *Members {
	return &Members{
		list:  []Member{},
		limit: limit,
	}
}

func (m Members) Length() int {
	return len(m.list)
}

func (m Members) AsList() []Member {
	list := make([]Member, len(m.list))
	copy(list, m.list)
	return list
}

func (m Members) Ids() []string {
	ids := make([]string, 0, len(m.list))
	for _, member := range m.list {
		ids = append(ids, member.Id)
	}

	return ids
}

func (m Members) GetById(id string) (Member, int, error) {
	for index, member := range m.list {
		if member.Id == id {
			return member, index, nil
		}
	}

	return Member{}, 0, ErrMemberNotFound
}

func (m Members) Host() (Member, bool) {
	for _, member := range m.list {
		if member.IsHost {
			return member, true
		}
	}

	return Member{}, false
}

// Add appends member. The first member of an empty room becomes host.
func (m *Members) Add(member Member) (Member, error) {
	if _, _, err := m.GetById(member.Id); err == nil {
		return Member{}, ErrMemberAlreadyExists
	}

	if m.Length() >= m.limit {
		return Member{}, ErrMembersLimitReached
	}

	member.IsHost = m.Length() == 0
	m.list = append(m.list, member)
	return member, nil
}

// RemoveById removes the member. When the host leaves, the remaining member
// with the earliest join time is promoted and returned as newHost.
func (m *Members) RemoveById(id string) (removed Member, newHost *Member, err error) {
	removed, index, err := m.GetById(id)
	if err != nil {
		return Member{}, nil, err
	}

	m.list = append(m.list[:index], m.list[index+1:]...)
	if !removed.IsHost || len(m.list) == 0 {
		return removed, nil, nil
	}

	earliest := 0
	for i, member := range m.list {
		if member.JoinedAt.Before(m.list[earliest].JoinedAt) {
			earliest = i
		}
	}
	m.list[earliest].IsHost = true
	promoted := m.list[earliest]

	return removed, &promoted, nil
}

func (m *Members) update(id string, fn func(*Member)) (Member, error) {
	_, index, err := m.GetById(id)
	if err != nil {
		return Member{}, err
	}

	fn(&m.list[index])
	return m.list[index], nil
}

func (m *Members) SetReady(id string, isReady bool) (Member, error) {
	return m.update(id, func(member *Member) { member.IsReady = isReady })
}

func (m *Members) SetSkipVote(id string, vote bool) (Member, error) {
	return m.update(id, func(member *Member) { member.SkipVote = vote })
}

func (m Members) AllReady() bool {
	if len(m.list) == 0 {
		return false
	}

	for _, member := range m.list {
		if !member.IsReady {
			return false
		}
	}

	return true
}

func (m Members) SkipVotes() int {
	votes := 0
	for _, member := range m.list {
		if member.SkipVote {
			votes++
		}
	}

	return votes
}

func (m *Members) resetVideoFlags() {
	for i := range m.list {
		m.list[i].SkipVote = false
		m.list[i].IsReady = false
	}
}
