package notify

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingDisplay struct {
	mu      sync.Mutex
	current string
	visible bool
	shows   []string
	hides   int
}

func (d *recordingDisplay) Show(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = message
	d.visible = true
	d.shows = append(d.shows, message)
}

func (d *recordingDisplay) Hide() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visible = false
	d.hides++
}

func (d *recordingDisplay) snapshot() (string, bool, int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, d.visible, len(d.shows), d.hides
}

type panickyDisplay struct{}

func (panickyDisplay) Show(string) { panic("no toast element") }
func (panickyDisplay) Hide()       { panic("no toast element") }

var quiet = log.New(io.Discard, "", 0)

func TestNotifyShowsThenHides(t *testing.T) {
	d := &recordingDisplay{}
	n := New(d, 50*time.Millisecond, quiet)
	defer n.Close()

	n.Notify("hello")
	state, msg := n.State()
	assert.Equal(t, Showing, state)
	assert.Equal(t, "hello", msg)

	assert.Eventually(t, func() bool {
		cur, visible, _, _ := d.snapshot()
		return visible && cur == "hello"
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		s, _ := n.State()
		_, visible, _, hides := d.snapshot()
		return s == Hidden && !visible && hides == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNotifyLastWriteWins(t *testing.T) {
	d := &recordingDisplay{}
	n := New(d, 80*time.Millisecond, quiet)
	defer n.Close()

	n.Notify("first")
	time.Sleep(50 * time.Millisecond)
	n.Notify("second")

	// The first message's timer would have fired here; the second must still be shown.
	time.Sleep(50 * time.Millisecond)
	state, msg := n.State()
	assert.Equal(t, Showing, state)
	assert.Equal(t, "second", msg)

	assert.Eventually(t, func() bool {
		s, _ := n.State()
		return s == Hidden
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		cur, visible, shows, hides := d.snapshot()
		return cur == "second" && !visible && shows == 2 && hides == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNotifySurvivesBrokenDisplay(t *testing.T) {
	n := New(panickyDisplay{}, 10*time.Millisecond, quiet)
	defer n.Close()

	assert.NotPanics(t, func() { n.Notify("still fine") })
	assert.Eventually(t, func() bool {
		s, _ := n.State()
		return s == Hidden
	}, time.Second, 5*time.Millisecond)
}

func TestNotifyWithoutDisplay(t *testing.T) {
	n := New(nil, 0, quiet)
	defer n.Close()
	n.Notify("nowhere")
	s, msg := n.State()
	assert.Equal(t, Showing, s)
	assert.Equal(t, "nowhere", msg)
}

func TestCloseIsIdempotent(t *testing.T) {
	n := New(&recordingDisplay{}, time.Second, quiet)
	n.Close()
	n.Close()
	assert.NotPanics(t, func() { n.Notify("after close") })
}
