// Package ofcontroller wires the event record, reply tracker, task
// registry, datapath table, handler dispatcher, RPC client surface, and
// backend transport into the event loop and the phased lifecycle state
// machine that the rest of this module's packages implement in isolation.
package ofcontroller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ofcore/ofcore/internal/ofbackend"
	"github.com/ofcore/ofcore/internal/ofconfig"
	"github.com/ofcore/ofcore/internal/ofdispatch"
	"github.com/ofcore/ofcore/internal/ofdp"
	"github.com/ofcore/ofcore/internal/ofevent"
	"github.com/ofcore/ofcore/internal/ofevents"
	"github.com/ofcore/ofcore/internal/ofreply"
	"github.com/ofcore/ofcore/internal/ofrpc"
	"github.com/ofcore/ofcore/internal/oftask"
)

// queueCapacity bounds the internal synthetic+backend event queue; see
// SPEC_FULL.md §5 on the unbounded-queue-to-bounded-channel translation.
const queueCapacity = 4096

// Controller is the running instance of the OF controller core: one per
// process invocation of Run.
type Controller struct {
	RunID  uuid.UUID
	logger *slog.Logger
	cfg    *ofconfig.Config

	backend    *ofbackend.Transport
	tracker    *ofreply.Tracker
	tasks      *oftask.Registry
	table      *ofdp.Table
	dispatcher *ofdispatch.Dispatcher
	rpc        *ofrpc.Client
	bus        *ofevents.Bus

	queue chan ofevent.Event

	phaseMu sync.Mutex
	phase   Phase

	tlsID       atomic.Value // string
	interruptMu sync.Mutex
	interruptFn func()

	cancelRun context.CancelFunc

	runningOnce sync.Once
	running     atomic.Bool
}

// New constructs a Controller in phase INIT. The backend subprocess is not
// launched until Run is called.
func New(cfg *ofconfig.Config, logger *slog.Logger, bus *ofevents.Bus) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		RunID:      uuid.New(),
		logger:     logger,
		cfg:        cfg,
		tracker:    ofreply.NewTracker(logger),
		table:      ofdp.NewTable(),
		dispatcher: ofdispatch.New(logger),
		bus:        bus,
		queue:      make(chan ofevent.Event, queueCapacity),
		phase:      PhaseInit,
	}
	return c
}

// RegisterApp adds app's On<Type> methods to the handler dispatcher. Must
// be called before Run; apps are immutable once the controller is running.
func (c *Controller) RegisterApp(app any) error {
	if c.running.Load() {
		return fmt.Errorf("ofcontroller: cannot register app after Run has started")
	}
	return c.dispatcher.Register(app)
}

// SetInterruptible designates the cancel function SIGINT targets; if none
// is registered, SIGINT behaves like SIGTERM (posts EXIT).
func (c *Controller) SetInterruptible(cancel func()) {
	c.interruptMu.Lock()
	c.interruptFn = cancel
	c.interruptMu.Unlock()
}

func (c *Controller) Phase() Phase {
	c.phaseMu.Lock()
	defer c.phaseMu.Unlock()
	return c.phase
}

// transition advances the phase and cancels the previous phase's scoped
// tasks, except when transitioning into PRESTART.
func (c *Controller) transition(to Phase) {
	c.phaseMu.Lock()
	from := c.phase
	if !after(from, to) {
		c.phaseMu.Unlock()
		c.logger.Warn("ignoring non-monotone phase transition", slog.String("from", string(from)), slog.String("to", string(to)))
		return
	}
	c.phase = to
	c.phaseMu.Unlock()

	c.logger.Info("phase transition", slog.String("from", string(from)), slog.String("to", string(to)))
	c.bus.Publish(ofevents.Event{
		Source: ofevents.SourceController,
		Kind:   ofevents.KindPhaseTransition,
		Data:   map[string]any{"from": string(from), "to": string(to)},
	})

	if to != PhasePrestart {
		c.tasks.Cancel(string(from))
	}
}

// post enqueues a synthetic internal event.
func (c *Controller) post(name string) {
	select {
	case c.queue <- ofevent.Event{"event": name}:
	default:
		c.logger.Error("event queue full, dropping synthetic event", slog.String("event", name))
	}
}

// Run launches the backend, drives PRESTART's start sequence, runs the
// event loop, reply sweeper, and (if configured) the admin server, until
// ctx is cancelled or an EXIT event completes the STOP->POSTSTOP drain.
// Exit status is ExitNormal unless a start-time error occurs outside the
// controlled STARTFAIL path, in which case it is ExitUnhandled.
func (c *Controller) Run(ctx context.Context) (ExitCode, error) {
	if !c.running.CompareAndSwap(false, true) {
		return ExitUnhandled, ErrAlreadyRunning
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	c.cancelRun = cancelRun

	c.tasks = oftask.NewRegistry(runCtx, c.logger, c.onTaskException)

	backend, err := ofbackend.New(runCtx, ofbackend.Config{Command: c.cfg.Backend}, c.logger)
	if err != nil {
		return ExitUnhandled, fmt.Errorf("ofcontroller: open backend: %w", err)
	}
	c.backend = backend
	c.rpc = ofrpc.NewClient(backend, c.tracker)

	c.transition(PhasePrestart)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return c.forwardBackendEvents(gctx) })
	g.Go(func() error { return c.tracker.RunSweeper(gctx) })
	g.Go(func() error { return c.runEventLoop(gctx) })

	if c.cfg.AdminListen != "" {
		admin := newAdminRunner(c)
		g.Go(func() error { return admin.Run(gctx) })
	}

	g.Go(func() error { return c.runStartSequence(gctx) })

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return ExitUnhandled, err
	}
	return ExitNormal, nil
}

func (c *Controller) forwardBackendEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.backend.Events():
			if !ok {
				c.post(ofevent.Exit)
				return nil
			}
			select {
			case c.queue <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (c *Controller) onTaskException(scope string, err any) {
	c.routeException(fmt.Errorf("task in scope %s: %v", scope, err))
}

func (c *Controller) routeException(err error) {
	sinks := c.dispatcher.OnExceptionHandlers()
	c.bus.Publish(ofevents.Event{
		Source: ofevents.SourceDispatch,
		Kind:   ofevents.KindHandlerException,
		Data:   map[string]any{"error": err.Error()},
	})
	if len(sinks) == 0 {
		c.logger.Error("unhandled exception", slog.String("error", err.Error()))
		return
	}
	for _, sink := range sinks {
		sink(err)
	}
}

// drainAttempts and drainWindow bound the STOP->POSTSTOP teardown per
// SPEC_FULL.md §4.6: up to three attempts of up to 5s each.
const drainAttempts = 3

func (c *Controller) drainWindow() time.Duration {
	d, err := time.ParseDuration(c.cfg.DrainTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// enterStop performs the START->STOP (or PRESTART->STOP) transition side
// effects: cancel the outgoing phase's tasks and post STOP, drain until no
// tasks remain (up to drainAttempts tries), then disconnect the backend,
// finally transitioning to POSTSTOP.
func (c *Controller) enterStop(ctx context.Context) {
	c.transition(PhaseStop)
	c.post(ofevent.Stop)
	window := c.drainWindow()

	for attempt := 0; attempt < drainAttempts; attempt++ {
		before := c.tasks.Count("")
		c.tasks.CancelAllWait(ctx, window)
		if c.tasks.Count("") == 0 {
			break
		}
		c.logger.Warn("drain attempt left new tasks outstanding, retrying",
			slog.Int("attempt", attempt+1), slog.Int("before", before), slog.Int("after", c.tasks.Count("")))
	}

	if c.backend != nil {
		if err := c.backend.Close(); err != nil {
			c.logger.Warn("error closing backend", slog.String("error", err.Error()))
		}
	}
	c.transition(PhasePoststop)

	if c.cancelRun != nil {
		c.cancelRun()
	}
}
