package crawler

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Shutdown is a one-way latch telling the scheduler to stop dispatching.
// It is passed explicitly to everything that needs to observe it.
type Shutdown struct {
	triggered atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewShutdown creates an untriggered latch
func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Trigger sets the latch. It returns true only for the call that flipped it.
func (s *Shutdown) Trigger() bool {
	flipped := false
	s.once.Do(func() {
		s.triggered.Store(true)
		close(s.done)
		flipped = true
	})
	return flipped
}

// Triggered reports whether the latch is set
func (s *Shutdown) Triggered() bool {
	return s.triggered.Load()
}

// Done is closed when the latch is set
func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}

// Drainer reports when every in-flight worker has terminated
type Drainer interface {
	Drained() <-chan struct{}
}

// State of the coordinator
type State int32

const (
	Armed State = iota
	Triggered
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Triggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Coordinator turns SIGINT/SIGTERM into a shutdown and waits for the drain
type Coordinator struct {
	shutdown *Shutdown
	drainer  Drainer
	sigChan  chan os.Signal
	stopChan chan struct{}
	armOnce  sync.Once
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator creates a coordinator in the Armed state
func NewCoordinator(shutdown *Shutdown, drainer Drainer) *Coordinator {
	return &Coordinator{
		shutdown: shutdown,
		drainer:  drainer,
		sigChan:  make(chan os.Signal, 1),
		stopChan: make(chan struct{}),
	}
}

// Arm registers the signal handlers (safe to call multiple times)
func (c *Coordinator) Arm() {
	c.armOnce.Do(func() {
		signal.Notify(c.sigChan, os.Interrupt, syscall.SIGTERM)

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case sig := <-c.sigChan:
					c.Handle(sig)
				case <-c.stopChan:
					return
				}
			}
		}()
	})
}

// Handle processes one shutdown signal. The first call trips the latch and
// blocks until the drainer reports that in-flight workers are done; later
// calls are no-ops.
func (c *Coordinator) Handle(sig os.Signal) {
	if !c.shutdown.Trigger() {
		logrus.Infof("Received signal %v while already shutting down, ignoring", sig)
		return
	}

	logrus.Warnf("Received signal %v - no new articles will be dispatched, waiting for in-flight workers...", sig)

	select {
	case <-c.drainer.Drained():
		logrus.Info("All in-flight workers finished")
	case <-c.stopChan:
		logrus.Debug("Coordinator disarmed before drain completed")
	}
}

// State returns the current coordinator state
func (c *Coordinator) State() State {
	if c.shutdown.Triggered() {
		return Triggered
	}
	return Armed
}

// Disarm stops signal delivery (safe to call multiple times)
func (c *Coordinator) Disarm() {
	c.stopOnce.Do(func() {
		signal.Stop(c.sigChan)
		close(c.stopChan)
	})
	c.wg.Wait()
}
