// Package matchmaking holds the in-memory ticket queue. The queue is an
// explicitly owned component: constructed at process start, injected
// into the matchmaking service, and drained at shutdown.
package matchmaking

import (
	"sync"
	"time"

	"github.com/arenaworks/wager-arena/models"
)

type qerr string

func (e qerr) Error() string { return string(e) }

var (
	ErrAlreadyQueued = qerr("user is already in the matchmaking queue")
)

// Queue partitions waiting tickets by (game, platform, bet amount) and
// pairs the two longest-waiting tickets of a partition first. A user
// holds at most one ticket across all partitions.
type Queue struct {
	mu         sync.Mutex
	partitions map[models.QueueKey][]*models.MatchmakingTicket
	byUser     map[int]models.QueueKey
	now        func() time.Time
}

func NewQueue() *Queue {
	return &Queue{
		partitions: make(map[models.QueueKey][]*models.MatchmakingTicket),
		byUser:     make(map[int]models.QueueKey),
		now:        time.Now,
	}
}

func (q *Queue) Enqueue(userID int, key models.QueueKey) (*models.MatchmakingTicket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, queued := q.byUser[userID]; queued {
		return nil, ErrAlreadyQueued
	}

	ticket := &models.MatchmakingTicket{
		UserID:     userID,
		Key:        key,
		EnqueuedAt: q.now(),
	}
	q.partitions[key] = append(q.partitions[key], ticket)
	q.byUser[userID] = key
	return ticket, nil
}

// Dequeue removes the user's ticket if present. It is idempotent and
// doubles as the disconnect handler.
func (q *Queue) Dequeue(userID int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(userID)
}

func (q *Queue) removeLocked(userID int) bool {
	key, queued := q.byUser[userID]
	if !queued {
		return false
	}
	delete(q.byUser, userID)

	tickets := q.partitions[key]
	for i, t := range tickets {
		if t.UserID == userID {
			q.partitions[key] = append(tickets[:i], tickets[i+1:]...)
			break
		}
	}
	if len(q.partitions[key]) == 0 {
		delete(q.partitions, key)
	}
	return true
}

// PopPair removes and returns the two longest-waiting tickets of the
// partition, FIFO order preserved. ok is false when fewer than two
// tickets wait there.
func (q *Queue) PopPair(key models.QueueKey) (first, second *models.MatchmakingTicket, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tickets := q.partitions[key]
	if len(tickets) < 2 {
		return nil, nil, false
	}

	first, second = tickets[0], tickets[1]
	rest := append([]*models.MatchmakingTicket(nil), tickets[2:]...)
	if len(rest) == 0 {
		delete(q.partitions, key)
	} else {
		q.partitions[key] = rest
	}
	delete(q.byUser, first.UserID)
	delete(q.byUser, second.UserID)
	return first, second, true
}

// PushFront returns a ticket to the head of its partition, used when a
// popped pairing is aborted and the solvent party keeps its place.
func (q *Queue) PushFront(ticket *models.MatchmakingTicket) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, queued := q.byUser[ticket.UserID]; queued {
		return
	}
	q.partitions[ticket.Key] = append([]*models.MatchmakingTicket{ticket}, q.partitions[ticket.Key]...)
	q.byUser[ticket.UserID] = ticket.Key
}

// Counts is a point-in-time snapshot of partition sizes.
func (q *Queue) Counts() map[models.QueueKey]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[models.QueueKey]int, len(q.partitions))
	for key, tickets := range q.partitions {
		counts[key] = len(tickets)
	}
	return counts
}

func (q *Queue) Len(key models.QueueKey) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.partitions[key])
}

// Drain empties the queue and returns the abandoned tickets, for
// shutdown cleanup.
func (q *Queue) Drain() []*models.MatchmakingTicket {
	q.mu.Lock()
	defer q.mu.Unlock()

	var all []*models.MatchmakingTicket
	for _, tickets := range q.partitions {
		all = append(all, tickets...)
	}
	q.partitions = make(map[models.QueueKey][]*models.MatchmakingTicket)
	q.byUser = make(map[int]models.QueueKey)
	return all
}
