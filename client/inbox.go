package client

import (
	"sort"
	"sync"

	"tapspot/models"
)

// Inbox сливает сообщения из живого канала и опроса. Дубликаты по id
// отбрасываются, порядок задаёт id. Курсор опроса двигают только
// результаты опроса: push мог потерять более раннее сообщение.
type Inbox struct {
	mu     sync.Mutex
	byID   map[int64]models.Message
	cursor int64
}

func NewInbox() *Inbox {
	return &Inbox{byID: make(map[int64]models.Message)}
}

// Merge добавляет сообщения из живого канала и возвращает только новые,
// по возрастанию id
func (in *Inbox) Merge(msgs ...models.Message) []models.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.merge(msgs)
}

// MergePolled добавляет страницу опроса и сдвигает курсор
func (in *Inbox) MergePolled(msgs ...models.Message) []models.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, m := range msgs {
		if m.ID > in.cursor {
			in.cursor = m.ID
		}
	}
	return in.merge(msgs)
}

func (in *Inbox) merge(msgs []models.Message) []models.Message {
	var added []models.Message
	for _, m := range msgs {
		if _, ok := in.byID[m.ID]; ok {
			continue
		}
		in.byID[m.ID] = m
		added = append(added, m)
	}
	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })
	return added
}

// Cursor after_id для следующего опроса
func (in *Inbox) Cursor() int64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cursor
}

// Messages все сообщения по возрастанию id
func (in *Inbox) Messages() []models.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]models.Message, 0, len(in.byID))
	for _, m := range in.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.byID)
}
