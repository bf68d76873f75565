package ui

import (
	"sync"
	"time"
)

// PlaybackControl coordinates pause, resume and stop between the caller
// and the playback goroutine.
type PlaybackControl struct {
	mu       sync.Mutex
	pauseReq bool
	paused   bool
	stopReq  bool
	exited   bool
	ackCh    chan struct{}
	exitCh   chan struct{}
}

// NewPlaybackControl returns a control in the running state.
func NewPlaybackControl() *PlaybackControl {
	return &PlaybackControl{
		ackCh:  make(chan struct{}, 1),
		exitCh: make(chan struct{}),
	}
}

// RequestPause asks the playback goroutine to pause and blocks until it
// acknowledges or exits.
func (pc *PlaybackControl) RequestPause() {
	pc.mu.Lock()
	if pc.paused || pc.pauseReq || pc.stopReq || pc.exited {
		pc.mu.Unlock()
		return
	}
	pc.pauseReq = true
	pc.mu.Unlock()

	select {
	case <-pc.ackCh:
	case <-pc.exitCh:
	}
}

// Exit is called by the playback goroutine when it returns. Later
// RequestPause calls return immediately.
func (pc *PlaybackControl) Exit() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.exited {
		return
	}
	pc.exited = true
	pc.pauseReq = false
	close(pc.exitCh)
}

// RequestResume lets a paused goroutine continue.
func (pc *PlaybackControl) RequestResume() {
	pc.mu.Lock()
	pc.pauseReq = false
	pc.paused = false
	pc.mu.Unlock()
}

// CheckPause is called by the playback goroutine between fragments. It
// waits while paused and returns false once stopped.
func (pc *PlaybackControl) CheckPause() bool {
	pc.mu.Lock()
	if pc.stopReq {
		pc.mu.Unlock()
		return false
	}
	if !pc.pauseReq {
		pc.mu.Unlock()
		return true
	}
	pc.paused = true
	pc.mu.Unlock()

	select {
	case pc.ackCh <- struct{}{}:
	default:
	}

	for {
		pc.mu.Lock()
		if pc.stopReq {
			pc.mu.Unlock()
			return false
		}
		if !pc.pauseReq {
			pc.paused = false
			pc.mu.Unlock()
			return true
		}
		pc.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
}

// Stop makes the next CheckPause return false.
func (pc *PlaybackControl) Stop() {
	pc.mu.Lock()
	pc.stopReq = true
	pc.pauseReq = false
	pc.mu.Unlock()
}

// IsPaused reports whether the playback goroutine is parked.
func (pc *PlaybackControl) IsPaused() bool {
	pc.mu.Lock()
	p := pc.paused
	pc.mu.Unlock()
	return p
}

// SharedStatus is a snapshot published by the playback goroutine for a
// display running elsewhere.
type SharedStatus struct {
	mu      sync.Mutex
	frames  int64
	playing bool
	lines   []string
}

// Update replaces the snapshot.
func (s *SharedStatus) Update(frames int64, playing bool, lines []string) {
	s.mu.Lock()
	s.frames = frames
	s.playing = playing
	s.lines = append(s.lines[:0], lines...)
	s.mu.Unlock()
}

// Read returns a copy of the snapshot.
func (s *SharedStatus) Read() (frames int64, playing bool, lines []string) {
	s.mu.Lock()
	frames = s.frames
	playing = s.playing
	lines = append([]string(nil), s.lines...)
	s.mu.Unlock()
	return
}
