// Package cooldown implements the resend cooldown used by flows that send a
// code or link to the user (password reset, verification). After a send the
// window counts down and a further send is refused until it reaches zero.
package cooldown

import (
	"math"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
	"github.com/jrsteele09/fitcoach-session/store"
)

// DefaultWindow is the resend cooldown applied when none is configured.
const DefaultWindow = 60 * time.Second

// State of the cooldown machine.
type State int

const (
	Idle State = iota
	Counting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Counting:
		return "counting"
	default:
		return "unknown"
	}
}

// Cooldown is safe for concurrent use. The zero time means idle.
type Cooldown struct {
	mu        sync.Mutex
	window    time.Duration
	startedAt time.Time
	nowTime   func() time.Time

	kv  store.Store
	key string
}

type Option func(*Cooldown)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Cooldown) {
		c.nowTime = nowFunc
	}
}

// WithStore keeps the start of the window under key so that it outlives the
// process. A wholesale store purge resets the cooldown.
func WithStore(kv store.Store, key string) Option {
	return func(c *Cooldown) {
		c.kv = kv
		c.key = key
	}
}

func New(window time.Duration, options ...Option) *Cooldown {
	if window <= 0 {
		window = DefaultWindow
	}
	c := &Cooldown{
		window:  window,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	c.load()
	return c
}

// Start moves the machine into counting for a full window, restarting it if
// it was already counting.
func (c *Cooldown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start()
}

// Reset returns the machine to idle.
func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedAt = time.Time{}
	if c.kv != nil {
		_ = c.kv.Delete(c.key)
	}
}

func (c *Cooldown) State() State {
	if c.Remaining() > 0 {
		return Counting
	}
	return Idle
}

// Remaining is the time left in the window, zero when idle.
func (c *Cooldown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining()
}

// RemainingSeconds rounds up so that a countdown never shows 0 while counting.
func (c *Cooldown) RemainingSeconds() int {
	return int(math.Ceil(c.Remaining().Seconds()))
}

// Allow reports whether a send may happen now and, if so, starts the window.
func (c *Cooldown) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining() > 0 {
		return false
	}
	c.start()
	return true
}

// Check is Allow with an error carrying the wait time.
func (c *Cooldown) Check() error {
	if c.Allow() {
		return nil
	}
	return apperrors.Wrapf(apperrors.ErrCooldownActive, "retry in %ds", c.RemainingSeconds())
}

func (c *Cooldown) start() {
	c.startedAt = c.nowTime()
	if c.kv != nil {
		_ = c.kv.Put(c.key, strconv.FormatInt(c.startedAt.UnixNano(), 10))
	}
}

func (c *Cooldown) remaining() time.Duration {
	if c.startedAt.IsZero() {
		return 0
	}
	left := c.window - c.nowTime().Sub(c.startedAt)
	if left <= 0 {
		c.startedAt = time.Time{}
		return 0
	}
	return left
}

func (c *Cooldown) load() {
	if c.kv == nil {
		return
	}
	raw, err := c.kv.Get(c.key)
	if err != nil {
		return
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		_ = c.kv.Delete(c.key)
		return
	}
	c.startedAt = time.Unix(0, nanos)
}
