// Package ofdispatch resolves an event type to the ordered tuple of user
// handler methods across registered apps, caching the lookup per type name.
// Registration reflects over each app's method set to reject wrongly-typed
// handlers; handlers for an event type are resolved on its first lookup.
package ofdispatch

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/ofcore/ofcore/internal/ofdp"
	"github.com/ofcore/ofcore/internal/ofevent"
)

// ErrNotMine is returned by a handler to mean "not for me, try the next
// handler for this event"; the dispatcher continues iteration.
var ErrNotMine = fmt.Errorf("ofdispatch: not mine")

// ErrBreak is returned by a handler to stop iteration for the current event
// without that being treated as an exception.
var ErrBreak = fmt.Errorf("ofdispatch: break")

// handlerFunc is the synchronous callable signature every On<Type> method
// must implement.
type handlerFunc = func(dp *ofdp.Datapath, ev ofevent.Event) error

var handlerType = reflect.TypeOf((*handlerFunc)(nil)).Elem()

// Dispatcher resolves event types to handler tuples across registered apps.
type Dispatcher struct {
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string][]handlerFunc
	apps  []any
}

// New constructs an empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger, cache: make(map[string][]handlerFunc)}
}

// Register adds app to the dispatcher. Apps are immutable after the
// controller starts; Register must only be called during construction.
// Any method on app whose name matches the On<Type> naming convention but
// has the wrong signature is a configuration error (synchronous top-level
// handlers are required by contract).
func (d *Dispatcher) Register(app any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := reflect.ValueOf(app)
	t := v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, "On") || m.Name == "OnException" {
			continue
		}
		mv := v.Method(i)
		if !mv.Type().ConvertibleTo(handlerType) {
			return fmt.Errorf("ofdispatch: %s.%s has the wrong signature for a handler (want func(*ofdp.Datapath, ofevent.Event) error)", t, m.Name)
		}
	}
	d.apps = append(d.apps, app)
	d.cache = make(map[string][]handlerFunc) // registering an app invalidates any cached lookups
	return nil
}

// pascalEventName converts an event type/name like "PACKET_IN" to the
// method name "OnPacketIn".
func pascalEventName(eventType string) string {
	parts := strings.Split(eventType, "_")
	var b strings.Builder
	b.WriteString("On")
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		if len(p) > 1 {
			b.WriteString(strings.ToLower(p[1:]))
		}
	}
	return b.String()
}

// Lookup returns the cached handler tuple for eventType, resolving and
// caching it on first use. Order follows app registration order.
func (d *Dispatcher) Lookup(eventType string) []handlerFunc {
	methodName := pascalEventName(eventType)

	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.cache[methodName]; ok {
		return cached
	}

	var handlers []handlerFunc
	for _, app := range d.apps {
		v := reflect.ValueOf(app)
		mv := v.MethodByName(methodName)
		if !mv.IsValid() {
			continue
		}
		fn := mv.Interface().(func(*ofdp.Datapath, ofevent.Event) error)
		handlers = append(handlers, fn)
	}

	if methodName == "OnChannelAlert" && len(handlers) == 0 {
		logger := d.logger
		handlers = append(handlers, func(dp *ofdp.Datapath, ev ofevent.Event) error {
			logger.Warn("unhandled CHANNEL_ALERT", slog.Any("event", map[string]any(ev)))
			return nil
		})
	}

	d.cache[methodName] = handlers
	return handlers
}

// Dispatch calls each handler for eventType in order with (dp, ev).
// ErrNotMine continues to the next handler; ErrBreak stops iteration
// cleanly; any other error is returned to the caller (the event loop),
// which routes it to OnException. A handler panic is recovered and
// returned as an error the same way.
func (d *Dispatcher) Dispatch(dp *ofdp.Datapath, eventType string, ev ofevent.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("ofdispatch: handler for %s panicked: %v", eventType, rec)
		}
	}()
	for _, h := range d.Lookup(eventType) {
		err := h(dp, ev)
		switch err {
		case nil:
			continue
		case ErrNotMine:
			continue
		case ErrBreak:
			return nil
		default:
			return err
		}
	}
	return nil
}

// OnExceptionHandlers returns every app-provided OnException(error) sink,
// in registration order.
func (d *Dispatcher) OnExceptionHandlers() []func(error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var sinks []func(error)
	for _, app := range d.apps {
		if a, ok := app.(interface{ OnException(error) }); ok {
			sinks = append(sinks, a.OnException)
		}
	}
	return sinks
}
