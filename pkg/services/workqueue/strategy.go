package workqueue

// ConcurrencyStrategy decides how many tasks may run at once.
type ConcurrencyStrategy interface {
	MaxConcurrent() int
}

// SerializedStrategy runs one task at a time. This is the default: batch
// entries are independent but a single small upload gains nothing from
// parallelism.
type SerializedStrategy struct{}

func NewSerializedStrategy() *SerializedStrategy { return &SerializedStrategy{} }

func (s *SerializedStrategy) MaxConcurrent() int { return 1 }

// ThrottledStrategy runs up to N concurrent tasks.
type ThrottledStrategy struct {
	limit int
}

func NewThrottledStrategy(limit int) *ThrottledStrategy {
	if limit < 1 {
		limit = 1
	}
	return &ThrottledStrategy{limit: limit}
}

func (s *ThrottledStrategy) MaxConcurrent() int { return s.limit }
