package chat

import (
	"sync"
	"time"

	"ocrchat/internal/models"
)

// Log is the append-only conversation log for one session. Insertion
// order is display order; nothing in the core flow reorders, dedupes, or
// deletes entries.
type Log struct {
	mu       sync.Mutex
	messages []models.Message
	nextID   int64
}

func NewLog() *Log {
	return &Log{nextID: 1}
}

// Append stores the message, stamping its ID and creation time, and
// returns the stored copy.
func (l *Log) Append(msg models.Message) models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg.ID = l.nextID
	l.nextID++
	msg.CreatedAt = time.Now().UTC()
	l.messages = append(l.messages, msg)
	return msg
}

// All returns the messages in insertion order.
func (l *Log) All() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func (l *Log) IsEmpty() bool {
	return l.Count() == 0
}

// Remove deletes the message at index. Extensibility hook; the core
// submit flow never calls it.
func (l *Log) Remove(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.messages) {
		return false
	}
	l.messages = append(l.messages[:index], l.messages[index+1:]...)
	return true
}

// Update applies fn to the message at index. Extensibility hook; the core
// submit flow never calls it.
func (l *Log) Update(index int, fn func(*models.Message)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.messages) || fn == nil {
		return false
	}
	fn(&l.messages[index])
	return true
}
