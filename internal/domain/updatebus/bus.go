package updatebus

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultCapacity is the per-channel buffer size used when none is given.
const DefaultCapacity = 100

// Channel is a subscriber handle: it holds the subscriber's queue and
// decides whether a scoped send applies to it.
type Channel[T any] interface {
	GetChannel() chan T
	SetChannel(chan T)
	Match(scope string) bool
}

// Cleaner is implemented by payloads that must be scrubbed before they
// leave the process.
type Cleaner interface {
	Clean()
}

// DropFunc observes dropped sends.
type DropFunc func(bus string, key string)

type Bus[T any] struct {
	name     string
	capacity int
	logger   *zap.Logger
	onDrop   DropFunc

	lock     sync.Mutex
	channels map[string]Channel[T]
	dropped  atomic.Uint64
}

// New creates a bus whose channels buffer capacity updates each.
func New[T any](name string, capacity int, logger *zap.Logger) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus[T]{
		name:     name,
		capacity: capacity,
		logger:   logger.With(zap.String("bus", name)),
		channels: make(map[string]Channel[T]),
	}
}

// SetOnDrop installs a hook called for every dropped send. It must be set
// before the bus is shared.
func (bus *Bus[T]) SetOnDrop(fn DropFunc) {
	bus.onDrop = fn
}

func (bus *Bus[T]) Name() string  { return bus.name }
func (bus *Bus[T]) Capacity() int { return bus.capacity }

// RegisterChannel installs a fresh channel into entry and registers it under
// key. An existing registration under key is closed and replaced.
func (bus *Bus[T]) RegisterChannel(key string, entry Channel[T]) chan T {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	ch := make(chan T, bus.capacity)
	entry.SetChannel(ch)
	if old, found := bus.channels[key]; found {
		close(old.GetChannel())
	}
	bus.channels[key] = entry
	return ch
}

// UnregisterChannel closes and removes the channel under key, if any.
func (bus *Bus[T]) UnregisterChannel(key string) {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	if entry, found := bus.channels[key]; found {
		close(entry.GetChannel())
		delete(bus.channels, key)
	}
}

// UnregisterChannelIf removes the registration under key only while it still
// owns ch. A session tearing down after its key was re-registered elsewhere
// leaves the newer registration alone.
func (bus *Bus[T]) UnregisterChannelIf(key string, ch chan T) bool {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	entry, found := bus.channels[key]
	if !found || entry.GetChannel() != ch {
		return false
	}
	close(ch)
	delete(bus.channels, key)
	return true
}

// GetChannel returns the live channel registered under key.
func (bus *Bus[T]) GetChannel(key string) (chan T, bool) {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	if entry, found := bus.channels[key]; found {
		return entry.GetChannel(), true
	}
	return nil, false
}

func (bus *Bus[T]) NumChannels() int {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	return len(bus.channels)
}

// Dropped returns the number of sends dropped on full channels.
func (bus *Bus[T]) Dropped() uint64 {
	return bus.dropped.Load()
}

func clean[T any](update T) {
	if c, ok := any(update).(Cleaner); ok {
		c.Clean()
	}
}

// SendUpdate offers update to every registered channel.
func (bus *Bus[T]) SendUpdate(update T) {
	bus.SendMatching("", update)
}

// SendMatching offers update to every channel whose Match(scope) is true.
// It never blocks; it returns the number of channels that accepted it.
func (bus *Bus[T]) SendMatching(scope string, update T) int {
	clean(update)
	bus.lock.Lock()
	defer bus.lock.Unlock()
	sent := 0
	for key, entry := range bus.channels {
		if !entry.Match(scope) {
			continue
		}
		if bus.trySend(key, entry.GetChannel(), update) {
			sent++
		}
	}
	return sent
}

// SendToKey offers update to the single channel registered under key. It
// reports false when no channel is registered or the channel is full.
func (bus *Bus[T]) SendToKey(key string, update T) bool {
	clean(update)
	bus.lock.Lock()
	defer bus.lock.Unlock()
	entry, found := bus.channels[key]
	if !found {
		return false
	}
	return bus.trySend(key, entry.GetChannel(), update)
}

// caller holds bus.lock
func (bus *Bus[T]) trySend(key string, ch chan T, update T) bool {
	select {
	case ch <- update:
		return true
	default:
		bus.dropped.Add(1)
		bus.logger.Warn("dropped update, channel full",
			zap.String("key", key),
			zap.Int("capacity", bus.capacity))
		if bus.onDrop != nil {
			bus.onDrop(bus.name, key)
		}
		return false
	}
}

// Close unregisters every channel.
func (bus *Bus[T]) Close() {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	for key, entry := range bus.channels {
		close(entry.GetChannel())
		delete(bus.channels, key)
	}
}
