// Package queue реализует in-memory FIFO очередь задач на эмбеддинг.
package queue

import (
	"sync"
	"time"
)

// Job - задача: посчитать и сохранить эмбеддинг одного изображения.
type Job struct {
	// ImageID - идентификатор изображения в хранилище.
	ImageID int64 `json:"image_id"`

	// SourcePath - путь к файлу изображения.
	SourcePath string `json:"source_path"`

	// EnqueuedAt - время постановки в очередь.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue - FIFO очередь задач. Все методы безопасны для параллельного
// вызова и никогда не блокируются на ожидании задач.
type Queue struct {
	mu   sync.Mutex
	jobs []Job
}

// New создаёт пустую очередь.
func New() *Queue {
	return &Queue{}
}

// Enqueue добавляет задачу в конец очереди и возвращает новую длину.
func (q *Queue) Enqueue(job Job) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = append(q.jobs, job)
	return len(q.jobs)
}

// Drain забирает до n задач из начала очереди.
// Возвращает задачи и оставшуюся длину. На пустой очереди возвращает пустой срез.
func (q *Queue) Drain(n int) ([]Job, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.jobs) == 0 {
		return nil, len(q.jobs)
	}
	if n > len(q.jobs) {
		n = len(q.jobs)
	}

	batch := make([]Job, n)
	copy(batch, q.jobs[:n])

	// Сдвигаем хвост, чтобы не удерживать память под уже забранные задачи
	rest := copy(q.jobs, q.jobs[n:])
	clear(q.jobs[rest:])
	q.jobs = q.jobs[:rest]

	return batch, len(q.jobs)
}

// Clear удаляет все задачи без обработки и возвращает их количество.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.jobs)
	q.jobs = nil
	return n
}

// Len возвращает текущее количество задач.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Snapshot возвращает копию задач в порядке очереди.
func (q *Queue) Snapshot() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}
