package notify

import (
	"log"
	"sync"
	"time"
)

// DefaultDuration is how long a message stays visible.
const DefaultDuration = 3 * time.Second

const queueSize = 32

// State of the toast.
type State int

const (
	Hidden State = iota
	Showing
)

func (s State) String() string {
	if s == Showing {
		return "showing"
	}
	return "hidden"
}

// Display is the surface a toast is drawn on.
type Display interface {
	Show(message string)
	Hide()
}

type displayOp struct {
	show    bool
	message string
}

// Notifier shows one transient message at a time. A new message replaces the
// current one and restarts the hide timer. Display calls run on a dedicated
// goroutine so a slow or broken display never blocks the caller.
type Notifier struct {
	display  Display
	duration time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	state   State
	message string
	gen     uint64
	timer   *time.Timer

	ops       chan displayOp
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a notifier. A zero duration uses DefaultDuration.
func New(display Display, duration time.Duration, logger *log.Logger) *Notifier {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[notify] ", log.LstdFlags)
	}
	n := &Notifier{
		display:  display,
		duration: duration,
		logger:   logger,
		ops:      make(chan displayOp, queueSize),
		done:     make(chan struct{}),
	}
	go n.run()
	return n
}

// Notify shows message, replacing any message currently shown.
func (n *Notifier) Notify(message string) {
	n.mu.Lock()
	n.gen++
	gen := n.gen
	n.state = Showing
	n.message = message
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.duration, func() { n.expire(gen) })
	n.mu.Unlock()

	n.logger.Printf("notify: %s", message)
	n.enqueue(displayOp{show: true, message: message})
}

// State returns the current toast state and message.
func (n *Notifier) State() (State, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state, n.message
}

// Close stops the hide timer and the display goroutine.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		if n.timer != nil {
			n.timer.Stop()
		}
		n.mu.Unlock()
		close(n.done)
	})
}

func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	if gen != n.gen || n.state != Showing {
		n.mu.Unlock()
		return
	}
	n.state = Hidden
	n.message = ""
	n.mu.Unlock()

	n.enqueue(displayOp{show: false})
}

func (n *Notifier) enqueue(op displayOp) {
	select {
	case <-n.done:
		return
	default:
	}
	select {
	case n.ops <- op:
	default:
		n.logger.Printf("notify: display queue full, dropping update")
	}
}

func (n *Notifier) run() {
	for {
		select {
		case <-n.done:
			return
		case op := <-n.ops:
			n.apply(op)
		}
	}
}

func (n *Notifier) apply(op displayOp) {
	if n.display == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			n.logger.Printf("notify: display failed: %v", r)
		}
	}()
	if op.show {
		n.display.Show(op.message)
	} else {
		n.display.Hide()
	}
}
