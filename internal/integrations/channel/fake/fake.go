package fake

import (
	"context"
	"sync"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/pkg/errors"
)

// Sender records deliveries. It fails the first FailTimes calls, or every
// call while Down is set.
type Sender struct {
	mu        sync.Mutex
	FailTimes int
	Down      bool
	Err       error
	sent      []*models.Notification
	attempts  int
}

func New() *Sender { return &Sender{} }

func (s *Sender) Send(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.Down || s.attempts <= s.FailTimes {
		if s.Err != nil {
			return s.Err
		}
		return errors.New("channel unavailable")
	}
	s.sent = append(s.sent, n.Clone())
	return nil
}

func (s *Sender) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Down = down
}

func (s *Sender) Sent() []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Notification, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *Sender) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
