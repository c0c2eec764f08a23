package collections

// Stack is a LIFO stack.
type Stack[T any] struct {
	data []T
}

// NewStack creates a stack with room for capacity items.
func NewStack[T any](capacity int) *Stack[T] {
	return &Stack[T]{data: make([]T, 0, capacity)}
}

// Push adds v on top.
func (s *Stack[T]) Push(v T) {
	s.data = append(s.data, v)
}

// Pop removes and returns the top value.
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	if len(s.data) == 0 {
		return zero, false
	}
	v := s.data[len(s.data)-1]
	s.data[len(s.data)-1] = zero
	s.data = s.data[:len(s.data)-1]
	return v, true
}

// Len returns the number of items.
func (s *Stack[T]) Len() int {
	return len(s.data)
}

// Clear empties the stack.
func (s *Stack[T]) Clear() {
	clear(s.data)
	s.data = s.data[:0]
}

// Queue is a FIFO queue over a slice with a moving head.
type Queue[T any] struct {
	data []T
	head int
}

// NewQueue creates a queue with room for capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{data: make([]T, 0, capacity)}
}

// Enqueue appends v.
func (q *Queue[T]) Enqueue(v T) {
	q.data = append(q.data, v)
}

// Dequeue removes and returns the oldest value.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if q.head >= len(q.data) {
		return zero, false
	}
	v := q.data[q.head]
	q.data[q.head] = zero
	q.head++
	switch {
	case q.head == len(q.data):
		q.data = q.data[:0]
		q.head = 0
	case q.head > 1024 && q.head > len(q.data)/2:
		n := copy(q.data, q.data[q.head:])
		q.data = q.data[:n]
		q.head = 0
	}
	return v, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.data) - q.head
}

// RingBuffer keeps the last Cap values pushed.
type RingBuffer[T any] struct {
	data  []T
	head  int
	count int
}

// NewRingBuffer creates a ring holding up to capacity values. A ring with
// zero capacity drops everything.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &RingBuffer[T]{data: make([]T, capacity)}
}

// Put appends v, evicting the oldest value when the ring is full. It reports
// whether something was evicted.
func (r *RingBuffer[T]) Put(v T) bool {
	if len(r.data) == 0 {
		return false
	}
	if r.count == len(r.data) {
		r.data[r.head] = v
		r.head = (r.head + 1) % len(r.data)
		return true
	}
	r.data[(r.head+r.count)%len(r.data)] = v
	r.count++
	return false
}

// Len returns the number of values held.
func (r *RingBuffer[T]) Len() int {
	return r.count
}

// Cap returns the ring's capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.data)
}

// Items returns the held values, oldest first.
func (r *RingBuffer[T]) Items() []T {
	out := make([]T, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(r.head+i)%len(r.data)])
	}
	return out
}

// Clear drops every value.
func (r *RingBuffer[T]) Clear() {
	clear(r.data)
	r.head = 0
	r.count = 0
}
