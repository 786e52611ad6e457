package syncclient

import (
	"sync"
	"time"
)

// typingDebouncer turns a burst of keystrokes into one typing=true and, after
// idle without keystrokes, exactly one typing=false.
type typingDebouncer struct {
	mu     sync.Mutex
	idle   time.Duration
	emit   func(typing bool)
	active bool
	timer  *time.Timer
	// gen invalidates timers that fired after being reset or cancelled.
	gen uint64
}

func newTypingDebouncer(idle time.Duration, emit func(bool)) *typingDebouncer {
	return &typingDebouncer{idle: idle, emit: emit}
}

func (d *typingDebouncer) Keystroke() {
	d.mu.Lock()
	start := !d.active
	d.active = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, func() { d.expire(gen) })
	d.mu.Unlock()

	if start {
		d.emit(true)
	}
}

func (d *typingDebouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()

	d.emit(false)
}

// Stop ends typing now, for example when the message is sent.
func (d *typingDebouncer) Stop() {
	d.mu.Lock()
	wasActive := d.active
	d.reset()
	d.mu.Unlock()

	if wasActive {
		d.emit(false)
	}
}

// Cancel drops the timer without emitting anything.
func (d *typingDebouncer) Cancel() {
	d.mu.Lock()
	d.reset()
	d.mu.Unlock()
}

func (d *typingDebouncer) reset() {
	d.active = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// peerTyping tracks remote typing flags. A flag expires on its own after ttl
// in case the matching typing=false never arrives.
type peerTyping struct {
	mu       sync.Mutex
	ttl      time.Duration
	onExpire func()
	timers   map[string]*time.Timer
}

func newPeerTyping(ttl time.Duration, onExpire func()) *peerTyping {
	return &peerTyping{ttl: ttl, onExpire: onExpire, timers: make(map[string]*time.Timer)}
}

// Set reports whether the visible state changed.
func (p *peerTyping) Set(userID string, typing bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, was := p.timers[userID]
	if was {
		t.Stop()
		delete(p.timers, userID)
	}
	if !typing {
		return was
	}

	var timer *time.Timer
	timer = time.AfterFunc(p.ttl, func() {
		p.mu.Lock()
		current, ok := p.timers[userID]
		if !ok || current != timer {
			p.mu.Unlock()
			return
		}
		delete(p.timers, userID)
		p.mu.Unlock()
		p.onExpire()
	})
	p.timers[userID] = timer
	return !was
}

func (p *peerTyping) Any() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers) > 0
}

func (p *peerTyping) Users() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	users := make([]string, 0, len(p.timers))
	for id := range p.timers {
		users = append(users, id)
	}
	return users
}

func (p *peerTyping) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
}
