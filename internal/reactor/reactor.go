// Package reactor implements the single-threaded, cooperative event loop: a
// task queue, a timer heap, fd readiness via epoll, and signal delivery
// funneled into the same queue so FIFO ordering holds across all three.
package reactor

import (
	"container/heap"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Handle is the cancellable token returned for every scheduled event, per
// the glossary's "Handle" entry. Cancel is idempotent and O(1).
type Handle struct {
	cancel func()
}

// Cancel guarantees the associated task will not run. It does not fire the
// wait's onTimeout callback; CancelFD is the call that does.
func (h Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

type task struct {
	fn func()
}

type timerEntry struct {
	at        time.Time
	fn        func()
	index     int
	cancelled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

type fdWait struct {
	fd        int
	write     bool
	onReady   func()
	onTimeout func()
	timer     *timerEntry // nil if no timeout requested
	cancelled bool
}

type sigWait struct {
	signo     int
	onFire    func()
	cancelled bool
}

// Reactor is the event loop. It is not safe for concurrent use from multiple
// goroutines: it owns exactly one OS thread's worth of execution, matching
// the "single-threaded cooperative" model it implements.
type Reactor struct {
	log *logrus.Logger

	// Local controls whether execute called from inside a running task
	// runs inline (recursive) or defers to the next turn. HTTP serving uses
	// the non-recursive default to bound stack depth.
	Local bool

	mu        sync.Mutex
	tasks     []task
	timers    timerHeap
	readers   map[int]*fdWait
	writers   map[int]*fdWait
	sigCh     chan os.Signal
	sigWaits  map[int][]*sigWait
	epfd      int
	breakLoop bool
	running   bool

	onException func(recovered interface{})
}

// New constructs a Reactor backed by an epoll instance. log must not be nil;
// it is threaded explicitly rather than taken from a package-level global.
func New(log *logrus.Logger) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		log:      log,
		readers:  make(map[int]*fdWait),
		writers:  make(map[int]*fdWait),
		sigWaits: make(map[int][]*sigWait),
		epfd:     epfd,
	}
	return r, nil
}

// SetExceptionHandler installs the handler invoked when a task panics; the
// loop itself never aborts.
func (r *Reactor) SetExceptionHandler(fn func(recovered interface{})) {
	r.onException = fn
}

// Execute enqueues fn to run on the next turn (or inline, if Local is set
// and called from within a running task).
func (r *Reactor) Execute(fn func()) {
	if r.Local && r.running {
		fn()
		return
	}
	r.mu.Lock()
	r.tasks = append(r.tasks, task{fn: fn})
	r.mu.Unlock()
}

// ExecuteAfter runs fn after delay has elapsed (monotonic), returning a
// cancellable Handle.
func (r *Reactor) ExecuteAfter(delay time.Duration, fn func()) Handle {
	return r.ExecuteAt(time.Now().Add(delay), fn)
}

// ExecuteAt runs fn at or after the given wall-clock instant.
func (r *Reactor) ExecuteAt(at time.Time, fn func()) Handle {
	r.mu.Lock()
	e := &timerEntry{at: at, fn: fn}
	heap.Push(&r.timers, e)
	r.mu.Unlock()
	return Handle{cancel: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		e.cancelled = true
	}}
}

// ExecuteOnReadable arms a single-shot readability wait on fd. Exactly one
// of task/onTimeout fires, unless the Handle is cancelled first.
func (r *Reactor) ExecuteOnReadable(fd int, task func(), timeout time.Duration, onTimeout func()) Handle {
	return r.arm(fd, false, task, timeout, onTimeout)
}

// ExecuteOnWritable is the write-side counterpart of ExecuteOnReadable.
func (r *Reactor) ExecuteOnWritable(fd int, task func(), timeout time.Duration, onTimeout func()) Handle {
	return r.arm(fd, true, task, timeout, onTimeout)
}

// NotifyReadable/NotifyWritable satisfy netio.Notifier so Endpoint
// implementations can re-arm interest without importing the reactor
// package's full surface.
func (r *Reactor) NotifyReadable(fd int, onReady, onTimeout func(), timeout time.Duration) {
	r.ExecuteOnReadable(fd, onReady, timeout, onTimeout)
}

func (r *Reactor) NotifyWritable(fd int, onReady, onTimeout func(), timeout time.Duration) {
	r.ExecuteOnWritable(fd, onReady, timeout, onTimeout)
}

func (r *Reactor) arm(fd int, write bool, onReady func(), timeout time.Duration, onTimeout func()) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := &fdWait{fd: fd, write: write, onReady: onReady, onTimeout: onTimeout}
	set, events, firstForFD := r.waitSet(fd, write)

	if timeout > 0 {
		w.timer = &timerEntry{at: time.Now().Add(timeout)}
		w.timer.fn = func() {
			r.mu.Lock()
			already := w.cancelled
			w.cancelled = true
			r.mu.Unlock()
			if already {
				return
			}
			r.removeWait(fd, write)
			if w.onTimeout != nil {
				w.onTimeout()
			}
		}
		heap.Push(&r.timers, w.timer)
	}
	set[fd] = w

	if firstForFD {
		ctl := unix.EPOLL_CTL_ADD
		if r.hasOtherDirection(fd, write) {
			ctl = unix.EPOLL_CTL_MOD
			events |= r.otherDirectionEvents(fd, write)
		}
		_ = unix.EpollCtl(r.epfd, ctl, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
	}

	return Handle{cancel: func() {
		r.mu.Lock()
		if w.cancelled {
			r.mu.Unlock()
			return
		}
		w.cancelled = true
		if w.timer != nil {
			w.timer.cancelled = true
		}
		r.mu.Unlock()
		r.removeWait(fd, write)
	}}
}

func (r *Reactor) waitSet(fd int, write bool) (map[int]*fdWait, uint32, bool) {
	set := r.readers
	events := uint32(unix.EPOLLIN)
	if write {
		set = r.writers
		events = uint32(unix.EPOLLOUT)
	}
	_, existed := set[fd]
	return set, events, !existed
}

func (r *Reactor) hasOtherDirection(fd int, write bool) bool {
	if write {
		_, ok := r.readers[fd]
		return ok
	}
	_, ok := r.writers[fd]
	return ok
}

func (r *Reactor) otherDirectionEvents(fd int, write bool) uint32 {
	if write {
		if _, ok := r.readers[fd]; ok {
			return uint32(unix.EPOLLIN)
		}
		return 0
	}
	if _, ok := r.writers[fd]; ok {
		return uint32(unix.EPOLLOUT)
	}
	return 0
}

func (r *Reactor) removeWait(fd int, write bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.readers
	if write {
		set = r.writers
	}
	delete(set, fd)
	r.reconcileEpoll(fd)
}

// reconcileEpoll must be called with r.mu held.
func (r *Reactor) reconcileEpoll(fd int) {
	_, hasR := r.readers[fd]
	_, hasW := r.writers[fd]
	switch {
	case !hasR && !hasW:
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	default:
		var ev uint32
		if hasR {
			ev |= unix.EPOLLIN
		}
		if hasW {
			ev |= unix.EPOLLOUT
		}
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: ev, Fd: int32(fd)})
	}
}

// CancelFD cancels any pending read/write interest on fd, firing their
// onTimeout callbacks with a cancellation signal.
func (r *Reactor) CancelFD(fd int) {
	r.mu.Lock()
	rw, hasR := r.readers[fd]
	ww, hasW := r.writers[fd]
	delete(r.readers, fd)
	delete(r.writers, fd)
	r.reconcileEpoll(fd)
	r.mu.Unlock()
	if hasR && !rw.cancelled {
		rw.cancelled = true
		if rw.onTimeout != nil {
			rw.onTimeout()
		}
	}
	if hasW && !ww.cancelled {
		ww.cancelled = true
		if ww.onTimeout != nil {
			ww.onTimeout()
		}
	}
}

// ExecuteOnSignal arms a single-shot wait for the next delivery of signo.
func (r *Reactor) ExecuteOnSignal(signo syscall.Signal, fn func()) Handle {
	r.mu.Lock()
	if r.sigCh == nil {
		r.sigCh = make(chan os.Signal, 16)
	}
	w := &sigWait{signo: int(signo), onFire: fn}
	r.sigWaits[int(signo)] = append(r.sigWaits[int(signo)], w)
	signal.Notify(r.sigCh, signo)
	r.mu.Unlock()
	return Handle{cancel: func() {
		r.mu.Lock()
		w.cancelled = true
		r.mu.Unlock()
	}}
}

// TimerCount, ReaderCount, WriterCount, TaskCount are the queue-depth
// accessors used by tests and diagnostics.
func (r *Reactor) TimerCount() int  { r.mu.Lock(); defer r.mu.Unlock(); return len(r.timers) }
func (r *Reactor) ReaderCount() int { r.mu.Lock(); defer r.mu.Unlock(); return len(r.readers) }
func (r *Reactor) WriterCount() int { r.mu.Lock(); defer r.mu.Unlock(); return len(r.writers) }
func (r *Reactor) TaskCount() int   { r.mu.Lock(); defer r.mu.Unlock(); return len(r.tasks) }

// BreakLoop stops RunLoop after the current turn completes.
func (r *Reactor) BreakLoop() {
	r.mu.Lock()
	r.breakLoop = true
	r.mu.Unlock()
}

// RunLoop runs until no handles are registered and no tasks are queued, or
// BreakLoop is called.
func (r *Reactor) RunLoop() {
	r.running = true
	for !r.idle() {
		r.mu.Lock()
		brk := r.breakLoop
		r.mu.Unlock()
		if brk {
			break
		}
		r.RunLoopOnce()
	}
	r.running = false
}

func (r *Reactor) idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks) == 0 && len(r.timers) == 0 && len(r.readers) == 0 && len(r.writers) == 0
}

// RunLoopOnce runs exactly one iteration: drain due timers, poll epoll for
// the time remaining until the next timer (or indefinitely if no timers and
// no signals are pending), then run one turn's worth of queued tasks.
func (r *Reactor) RunLoopOnce() {
	r.drainSignals()
	r.fireDueTimers()

	timeout := r.pollTimeout()
	r.pollEpoll(timeout)

	r.fireDueTimers()
	r.runQueuedTasks()
}

func (r *Reactor) pollTimeout() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tasks) > 0 {
		return 0
	}
	if len(r.timers) == 0 {
		if r.sigCh != nil {
			return 50
		}
		return -1
	}
	d := time.Until(r.timers[0].at)
	if d <= 0 {
		return 0
	}
	ms := int(d / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return ms
}

func (r *Reactor) pollEpoll(timeoutMS int) {
	var events [128]unix.EpollEvent
	n, err := unix.EpollWait(r.epfd, events[:], timeoutMS)
	if err != nil || n <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		readable := events[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0
		writable := events[i].Events&unix.EPOLLOUT != 0
		if readable {
			r.fireFD(fd, false)
		}
		if writable {
			r.fireFD(fd, true)
		}
	}
}

func (r *Reactor) fireFD(fd int, write bool) {
	r.mu.Lock()
	set := r.readers
	if write {
		set = r.writers
	}
	w, ok := set[fd]
	if ok {
		delete(set, fd)
		r.reconcileEpoll(fd)
	}
	r.mu.Unlock()
	if !ok || w.cancelled {
		return
	}
	w.cancelled = true
	if w.timer != nil {
		w.timer.cancelled = true
	}
	r.runProtected(w.onReady)
}

func (r *Reactor) fireDueTimers() {
	now := time.Now()
	for {
		r.mu.Lock()
		if len(r.timers) == 0 || r.timers[0].at.After(now) {
			r.mu.Unlock()
			return
		}
		e := heap.Pop(&r.timers).(*timerEntry)
		r.mu.Unlock()
		if e.cancelled {
			continue
		}
		r.runProtected(e.fn)
	}
}

func (r *Reactor) drainSignals() {
	if r.sigCh == nil {
		return
	}
	for {
		select {
		case s := <-r.sigCh:
			sig, ok := s.(syscall.Signal)
			if !ok {
				continue
			}
			r.mu.Lock()
			waits := r.sigWaits[int(sig)]
			r.sigWaits[int(sig)] = nil
			r.mu.Unlock()
			for _, w := range waits {
				if w.cancelled {
					continue
				}
				r.runProtected(w.onFire)
			}
		default:
			return
		}
	}
}

func (r *Reactor) runQueuedTasks() {
	r.mu.Lock()
	pending := r.tasks
	r.tasks = nil
	r.mu.Unlock()
	for _, t := range pending {
		r.runProtected(t.fn)
	}
}

// runProtected runs fn, reporting a panic to the installed exception
// handler rather than letting it escape the loop.
func (r *Reactor) runProtected(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			if r.onException != nil {
				r.onException(rec)
			} else if r.log != nil {
				r.log.WithField("panic", rec).Error("reactor: task panicked")
			}
		}
	}()
	fn()
}
