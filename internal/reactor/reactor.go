// Package reactor implements a single-threaded event reactor multiplexing
// socket I/O and timers on Linux epoll. It backs all network activity in
// the crawler: callbacks run serialized on the goroutine that calls
// Dispatch, and no callback is ever re-entered while another is running.
package reactor

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Interest is the I/O readiness mask a caller registers for.
type Interest uint8

const (
	Read Interest = 1 << iota
	Write
	// EdgeTriggered requests EPOLLET semantics instead of the epoll
	// default (level-triggered).
	EdgeTriggered
)

// Event is the tagged union delivered to an I/O callback: the fd and the
// readiness mask that fired.
type Event struct {
	FD    int
	Ready Interest
}

// IOCallback is invoked on the dispatch goroutine when fd becomes ready.
type IOCallback func(Event)

// TimerCallback is invoked on the dispatch goroutine when a timer fires.
type TimerCallback func()

// Handle identifies a registered interest (I/O or timer). Handles are
// owned by the Reactor once added; freeing one implies removal.
type Handle struct {
	id      uint64
	isTimer bool
}

// Reactor is a single event_base analogue: one epoll instance, one timer
// min-heap, one wake fd used both for Stop() and for cross-goroutine
// re-arms (SubmitTimer/UpdateTimer/Post called off the dispatch goroutine).
type Reactor struct {
	epfd   int
	wakeFD int // eventfd; read side lives in the epoll set

	mu        sync.Mutex
	ioByFD    map[int]*ioReg
	timers    timerHeap
	timerByID map[uint64]*timerReg
	nextID    uint64
	posted    []func()

	stopped  atomic.Bool
	wakePend atomic.Bool
}

type ioReg struct {
	fd   int
	mask Interest
	cb   IOCallback
}

type timerReg struct {
	id         uint64
	deadline   time.Time
	period     time.Duration
	persistent bool
	cb         TimerCallback
	index      int // heap index, -1 when not in heap
}

// New creates a reactor: an epoll instance plus a wake eventfd registered
// for read readiness. Construction can fail under resource exhaustion.
func New() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}

	r := &Reactor{
		epfd:      epfd,
		wakeFD:    wakeFD,
		ioByFD:    make(map[int]*ioReg),
		timerByID: make(map[uint64]*timerReg),
	}
	heap.Init(&r.timers)

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFD)
		return nil, fmt.Errorf("reactor: register wake fd: %w", err)
	}

	return r, nil
}

// SubmitIO registers fd for readiness matching mask; cb fires on the
// dispatch goroutine every time fd becomes ready (level-triggered unless
// EdgeTriggered is set). Add can fail under resource exhaustion.
func (r *Reactor) SubmitIO(fd int, mask Interest, cb IOCallback) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg := &ioReg{fd: fd, mask: mask, cb: cb}
	events := epollEvents(mask)

	op := unix.EPOLL_CTL_ADD
	if _, exists := r.ioByFD[fd]; exists {
		op = unix.EPOLL_CTL_MOD
	}

	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, op, fd, &ev); err != nil {
		return Handle{}, fmt.Errorf("reactor: epoll_ctl fd=%d: %w", fd, err)
	}

	r.ioByFD[fd] = reg
	r.nextID++
	return Handle{id: r.nextID}, nil
}

// RemoveInterest unregisters fd. It is a no-op if fd was never registered.
func (r *Reactor) RemoveInterest(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ioByFD[fd]; !exists {
		return
	}
	delete(r.ioByFD, fd)
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// SubmitTimer schedules cb to fire after timeout. A non-persistent timer
// with timeout 0 is scheduled for the next tick (1ms), guaranteeing
// forward progress. If persistent, cb is re-scheduled for timeout again
// after each firing until FreeHandle is called.
func (r *Reactor) SubmitTimer(timeout time.Duration, persistent bool, cb TimerCallback) Handle {
	if !persistent && timeout <= 0 {
		timeout = time.Millisecond
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	t := &timerReg{
		id:         r.nextID,
		deadline:   time.Now().Add(timeout),
		period:     timeout,
		persistent: persistent,
		cb:         cb,
		index:      -1,
	}
	r.timerByID[t.id] = t
	heap.Push(&r.timers, t)
	r.wake()

	return Handle{id: t.id, isTimer: true}
}

// UpdateTimer re-arms h to fire after timeout from now, in place.
func (r *Reactor) UpdateTimer(h Handle, timeout time.Duration) {
	if !h.isTimer {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timerByID[h.id]
	if !ok {
		return
	}
	t.period = timeout
	t.deadline = time.Now().Add(timeout)
	if t.index >= 0 {
		heap.Fix(&r.timers, t.index)
	} else {
		heap.Push(&r.timers, t)
	}
	r.wake()
}

// Post schedules fn to run on the dispatch goroutine at the next wake-up.
// This is how components that run work on other goroutines (the HTTP
// client's per-transfer workers, in particular) hand results back to the
// single-threaded reactor without the reactor needing a real socket fd per
// unit of work. Safe to call from any goroutine, including from within a
// dispatched callback.
func (r *Reactor) Post(fn func()) {
	r.mu.Lock()
	r.posted = append(r.posted, fn)
	r.mu.Unlock()
	r.wake()
}

func (r *Reactor) drainPosted() {
	for {
		r.mu.Lock()
		if len(r.posted) == 0 {
			r.mu.Unlock()
			return
		}
		fn := r.posted[0]
		r.posted = r.posted[1:]
		r.mu.Unlock()
		fn()
	}
}

// FreeHandle removes a timer handle. I/O handles are freed via
// RemoveInterest(fd) instead, since the fd itself is the natural key.
func (r *Reactor) FreeHandle(h Handle) {
	if !h.isTimer {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timerByID[h.id]
	if !ok {
		return
	}
	delete(r.timerByID, h.id)
	if t.index >= 0 {
		heap.Remove(&r.timers, t.index)
	}
}

// DispatchResult distinguishes why Dispatch returned.
type DispatchResult int

const (
	// DispatchDrained means no interests remained.
	DispatchDrained DispatchResult = iota
	// DispatchStopped means Stop() was called.
	DispatchStopped
)

// Dispatch blocks, running registered callbacks, until Stop is called or
// no interests (I/O or timer) remain. It must be called from exactly one
// goroutine; that goroutine becomes "the" reactor thread for the duration.
func (r *Reactor) Dispatch() (DispatchResult, error) {
	events := make([]unix.EpollEvent, 64)

	for {
		if r.stopped.Load() {
			return DispatchStopped, nil
		}

		timeout := r.nextTimeout()

		r.mu.Lock()
		hasWork := len(r.ioByFD) > 0 || len(r.timers) > 0 || len(r.posted) > 0
		r.mu.Unlock()
		if !hasWork {
			return DispatchDrained, nil
		}

		n, err := unix.EpollWait(r.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return DispatchDrained, fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		r.fireDueTimers()

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == r.wakeFD {
				r.drainWake()
				r.drainPosted()
				continue
			}
			r.fireIO(fd, events[i].Events)
		}

		if r.stopped.Load() {
			return DispatchStopped, nil
		}
	}
}

// Stop is callable from within a dispatched callback or from any other
// goroutine. It causes a blocked Dispatch to unwind without invoking
// further callbacks beyond those already ready in the current batch.
func (r *Reactor) Stop() {
	r.stopped.Store(true)
	r.wake()
}

// Close releases the epoll and wake file descriptors. Call after Dispatch
// returns.
func (r *Reactor) Close() error {
	err1 := unix.Close(r.epfd)
	err2 := unix.Close(r.wakeFD)
	if err1 != nil {
		return err1
	}
	return err2
}

func (r *Reactor) wake() {
	if !r.wakePend.CompareAndSwap(false, true) {
		return // a wake is already pending; EFD_NONBLOCK write would just coalesce
	}
	buf := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, _ = unix.Write(r.wakeFD, buf[:])
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(r.wakeFD, buf[:])
	r.wakePend.Store(false)
}

func (r *Reactor) fireIO(fd int, raw uint32) {
	r.mu.Lock()
	reg, ok := r.ioByFD[fd]
	r.mu.Unlock()
	if !ok {
		return
	}

	var ready Interest
	if raw&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		ready |= Read
	}
	if raw&unix.EPOLLOUT != 0 {
		ready |= Write
	}
	if ready == 0 {
		return
	}

	reg.cb(Event{FD: fd, Ready: ready})
}

// nextTimeout returns the epoll_wait timeout in milliseconds: -1 (block
// forever) when there are no timers, 0 when one is already due.
func (r *Reactor) nextTimeout() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.timers) == 0 {
		return -1
	}
	d := time.Until(r.timers[0].deadline)
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)>>1) {
		ms = int64(^uint32(0) >> 1)
	}
	return int(ms)
}

func (r *Reactor) fireDueTimers() {
	now := time.Now()

	for {
		r.mu.Lock()
		if len(r.timers) == 0 || r.timers[0].deadline.After(now) {
			r.mu.Unlock()
			break
		}
		t := heap.Pop(&r.timers).(*timerReg)
		if t.persistent {
			t.deadline = now.Add(t.period)
			heap.Push(&r.timers, t)
		} else {
			delete(r.timerByID, t.id)
		}
		r.mu.Unlock()

		t.cb()
	}
}

func epollEvents(mask Interest) uint32 {
	var e uint32
	if mask&Read != 0 {
		e |= unix.EPOLLIN
	}
	if mask&Write != 0 {
		e |= unix.EPOLLOUT
	}
	if mask&EdgeTriggered != 0 {
		e |= unix.EPOLLET
	}
	return e
}
