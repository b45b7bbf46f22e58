package messaging

import (
	"context"
	"sync"

	"github.com/goliatone/go-bananabit"
)

// LogSender writes a delivery notice to the logger instead of sending mail.
// Bodies are not logged since they carry verification tokens.
type LogSender struct {
	logger bananabit.Logger
}

// NewLogSender returns a sender that only logs.
func NewLogSender(logger bananabit.Logger) *LogSender {
	if logger == nil {
		logger = bananabit.DefaultLogger("mail")
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("====== SENDING EMAIL NOTIFICATION =======",
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// MemorySender keeps every message it is given.
type MemorySender struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewMemorySender returns an empty MemorySender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// FailWith makes subsequent sends return err. A nil err restores delivery.
func (s *MemorySender) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemorySender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of the delivered messages in order.
func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
