package generator

import "strings"

// Outcome tells how a stream produced its fragments.
type Outcome string

const (
	// OutcomeStreamed means fragments came from the streaming call.
	OutcomeStreamed Outcome = "streamed"
	// OutcomeFallback means streaming failed and the full response of a
	// blocking call was sent as the final fragment.
	OutcomeFallback Outcome = "fallback"
)

// Stream is a finite, non-restartable sequence of answer fragments.
// Consumers must drain Fragments or cancel the context the stream was
// started with; the producer blocks until one of the two happens.
type Stream struct {
	fragments chan string
	done      chan struct{}
	outcome   Outcome
	err       error
}

func newStream() *Stream {
	return &Stream{
		fragments: make(chan string),
		done:      make(chan struct{}),
	}
}

func failedStream(err error) *Stream {
	s := newStream()
	s.err = err
	close(s.fragments)
	close(s.done)
	return s
}

// Fragments returns the channel of fragments. It is closed when the stream ends.
func (s *Stream) Fragments() <-chan string {
	return s.fragments
}

// Done is closed once the stream has ended and Outcome and Err are final.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Outcome blocks until the stream ends and reports how it was produced.
func (s *Stream) Outcome() Outcome {
	<-s.done
	return s.outcome
}

// Err blocks until the stream ends and returns the error that ended it, if any.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Collect drains the stream into one string.
func (s *Stream) Collect() (string, error) {
	var b strings.Builder
	for f := range s.fragments {
		b.WriteString(f)
	}
	return b.String(), s.Err()
}
