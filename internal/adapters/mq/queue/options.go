package queue

// Option applies a configuration option to an InMemoryQueue.
type Option func(*settings)

type settings struct {
	capacity   int
	bufferSize int
}

// WithCapacity sets the maximum number of queued items.
func WithCapacity(capacity int) Option {
	return func(s *settings) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithBufferSize sets the buffer size of the item channel.
func WithBufferSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.bufferSize = size
		}
	}
}
