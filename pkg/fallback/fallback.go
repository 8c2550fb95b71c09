// Package fallback runs an ordered list of increasingly permissive parse
// strategies, short-circuiting on the first success. Keeping the order an
// explicit value makes each chain inspectable and unit-testable on its own.
package fallback

import "fmt"

// Strategy is one named parse attempt.
type Strategy[T any] struct {
	Name string
	Run  func() (T, error)
}

// Outcome reports which strategy succeeded and what the earlier ones said.
type Outcome struct {
	Strategy string
	// Attempts holds one message per failed strategy, in chain order.
	Attempts []string
}

// Run evaluates strategies in order and returns the first success along with
// the outcome. If every strategy fails, the last error is returned wrapped
// with the full attempt trail.
func Run[T any](strategies []Strategy[T]) (T, Outcome, error) {
	var zero T
	outcome := Outcome{}

	var lastErr error
	for _, s := range strategies {
		result, err := s.Run()
		if err == nil {
			outcome.Strategy = s.Name
			return result, outcome, nil
		}
		lastErr = err
		outcome.Attempts = append(outcome.Attempts, fmt.Sprintf("%s: %v", s.Name, err))
	}

	if lastErr == nil {
		return zero, outcome, fmt.Errorf("no strategies to run")
	}
	return zero, outcome, fmt.Errorf("all %d strategies failed: %w", len(outcome.Attempts), lastErr)
}
