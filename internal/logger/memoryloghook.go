package logger

// Captures log messages in memory so that tests can assert on warnings
// emitted by best-effort operations.

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type MemoryLogHook struct {
	messagesLock sync.Mutex
	messages     []MemoryLogMessage
}

type MemoryLogMessage struct {
	Message string
	Level   logrus.Level
}

func NewMemoryLogHook() *MemoryLogHook {
	return &MemoryLogHook{}
}

func (h *MemoryLogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *MemoryLogHook) Fire(entry *logrus.Entry) error {
	h.messagesLock.Lock()
	defer h.messagesLock.Unlock()

	h.messages = append(h.messages, MemoryLogMessage{
		Message: entry.Message,
		Level:   entry.Level,
	})
	return nil
}

// Messages returns a copy of all captured messages.
func (h *MemoryLogHook) Messages() []MemoryLogMessage {
	h.messagesLock.Lock()
	defer h.messagesLock.Unlock()

	return append([]MemoryLogMessage(nil), h.messages...)
}

// Attach registers the hook on the shared logger and returns a detach
// function for the test to defer.
func (h *MemoryLogHook) Attach() func() {
	Log.AddHook(h)
	return func() {
		allHooks := Log.Hooks
		for level, hooks := range allHooks {
			newHooks := []logrus.Hook(nil)
			for _, hook := range hooks {
				if hook != h {
					newHooks = append(newHooks, hook)
				}
			}
			allHooks[level] = newHooks
		}
	}
}
