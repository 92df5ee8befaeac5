package domain

import (
	"errors"
	"time"
)

var (
	ErrQueueItemNotFound = errors.New("queue item not found")
	ErrQueueLimitReached = errors.New("queue limit reached")
)

type QueueItem struct {
	Id       int
	VideoId  string
	Platform string
	Title    string
	AddedBy  string
	AddedAt  time.Time
}

// Queue is a FIFO of videos waiting to be played. Ids are unique within the
// room and also number videos loaded directly, bypassing the queue.
type Queue struct {
	list   []QueueItem
	lastId int
	limit  int
}

func NewQueue(limit int) *Queue {
	return &Queue{
		list:  []QueueItem{},
		limit: limit,
	}
}

func (q Queue) AsList() []QueueItem {
	list := make([]QueueItem, len(q.list))
	copy(list, q.list)
	return list
}

func (q Queue) Length() int {
	return len(q.list)
}

func (q *Queue) NextId() int {
	q.lastId++
	return q.lastId
}

func (q Queue) GetById(id int) (QueueItem, int, error) {
	for index, item := range q.list {
		if item.Id == id {
			return item, index, nil
		}
	}

	return QueueItem{}, 0, ErrQueueItemNotFound
}

func (q *Queue) Add(item QueueItem) (QueueItem, error) {
	if q.Length() >= q.limit {
		return QueueItem{}, ErrQueueLimitReached
	}

	item.Id = q.NextId()
	q.list = append(q.list, item)

	return item, nil
}

func (q *Queue) RemoveById(id int) (QueueItem, error) {
	item, index, err := q.GetById(id)
	if err != nil {
		return QueueItem{}, err
	}

	q.list = append(q.list[:index], q.list[index+1:]...)
	return item, nil
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (QueueItem, bool) {
	if len(q.list) == 0 {
		return QueueItem{}, false
	}

	item := q.list[0]
	q.list = q.list[1:]
	return item, true
}
