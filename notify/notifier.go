package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	c "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/austin-honeyjar/honeyjar-server-sub004/logger"
)

// Sink receives direct messages pushed into a conversation thread: step
// prompts, status updates, generated artifacts. The UI layer provides the
// real implementation.
type Sink interface {
	AddDirectMessage(threadId string, content string) error
}

// Notifier wraps a Sink with idempotency-keyed duplicate suppression: each
// outbound message gets a key derived from thread and content, checked
// against a recent-event cache before emitting.
type Notifier struct {
	sink Sink
	seen *c.Cache
}

func NewNotifier(sink Sink) *Notifier {
	return &Notifier{
		sink: sink,
		seen: c.New(10*time.Minute, 30*time.Minute),
	}
}

func (n *Notifier) AddDirectMessage(threadId string, content string) error {
	key := idempotencyKey(threadId, content)
	// Add fails when the key is already present, which is exactly the
	// duplicate case
	if err := n.seen.Add(key, struct{}{}, c.DefaultExpiration); err != nil {
		logger.Debug("suppressing duplicate notification", zap.String("threadId", threadId))
		return nil
	}
	if err := n.sink.AddDirectMessage(threadId, content); err != nil {
		n.seen.Delete(key)
		return err
	}
	return nil
}

func idempotencyKey(threadId string, content string) string {
	sum := sha256.Sum256([]byte(content))
	return threadId + ":" + hex.EncodeToString(sum[:])
}

// LogSink is the default sink when no UI transport is wired; it only logs.
type LogSink struct{}

func (LogSink) AddDirectMessage(threadId string, content string) error {
	logger.Info("direct message", zap.String("threadId", threadId), zap.String("content", content))
	return nil
}
