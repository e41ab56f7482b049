package ofcontroller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ofcore/ofcore/internal/ofevent"
)

// supportedMajorVersion is the highest backend API major version this core
// understands; see SPEC_FULL.md §4.6 start sequence step 1.
const supportedMajorVersion = 1

var signalNames = map[string]os.Signal{
	"SIGTERM": syscall.SIGTERM,
	"SIGINT":  syscall.SIGINT,
	"SIGHUP":  syscall.SIGHUP,
}

// runStartSequence drives the PRESTART start sequence: obtain the backend's
// description, verify its major API version, optionally install a TLS
// identity, then issue LISTEN for every configured endpoint. On success it
// transitions to START and posts the START synthetic event; on failure it
// posts STARTFAIL then EXIT, handing teardown to enterStop via the event
// loop rather than failing Run directly.
func (c *Controller) runStartSequence(ctx context.Context) error {
	if err := c.startSequence(ctx); err != nil {
		startErr := fmt.Errorf("%w: %v", ErrStartFailed, err)
		c.logger.Error("start sequence failed", slog.String("error", startErr.Error()))
		c.post(ofevent.StartFail)
		c.post(ofevent.Exit)
		return nil
	}
	c.transition(PhaseStart)
	c.post(ofevent.Start)
	return c.runSignalHandler(ctx)
}

func (c *Controller) startSequence(ctx context.Context) error {
	desc, err := c.describeBackend(ctx)
	if err != nil {
		return fmt.Errorf("describe backend: %w", err)
	}
	major, _ := desc["api_major"].(float64)
	if int(major) > supportedMajorVersion {
		return fmt.Errorf("%w: backend api_major=%d > supported %d", ErrBadAPIVersion, int(major), supportedMajorVersion)
	}

	if c.cfg.TLS != nil {
		tlsID, err := c.installIdentity(ctx)
		if err != nil {
			return fmt.Errorf("install tls identity: %w", err)
		}
		c.tlsID.Store(tlsID)
	}

	for _, endpoint := range c.cfg.Listen {
		connID, err := c.issueListen(ctx, endpoint)
		if err != nil {
			return fmt.Errorf("listen %s: %w", endpoint, err)
		}
		c.logger.Info("listening", slog.String("endpoint", endpoint), slog.Uint64("conn_id", connID))
	}
	return nil
}

func (c *Controller) describeBackend(ctx context.Context) (map[string]any, error) {
	h, err := c.rpc.RPCCall(ctx, "OFP.DESCRIPTION", nil)
	if err != nil {
		return nil, err
	}
	v, err := h.AwaitOne(ctx)
	if err != nil {
		return nil, err
	}
	desc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected description reply shape")
	}
	return desc, nil
}

func (c *Controller) installIdentity(ctx context.Context) (string, error) {
	params := map[string]any{
		"cert":    c.cfg.TLS.Cert,
		"cacert":  c.cfg.TLS.CACert,
		"privkey": c.cfg.TLS.PrivKey,
	}
	h, err := c.rpc.RPCCall(ctx, "OFP.ADD_IDENTITY", params)
	if err != nil {
		return "", err
	}
	v, err := h.AwaitOne(ctx)
	if err != nil {
		return "", err
	}
	result, _ := v.(map[string]any)
	tlsID, _ := result["tls_id"].(string)
	return tlsID, nil
}

func (c *Controller) issueListen(ctx context.Context, endpoint string) (uint64, error) {
	params := map[string]any{
		"endpoint": endpoint,
		"versions": c.cfg.ListenVersions,
	}
	if tlsID, ok := c.tlsID.Load().(string); ok && tlsID != "" {
		params["tls_id"] = tlsID
	}
	h, err := c.rpc.RPCCall(ctx, "OFP.LISTEN", params)
	if err != nil {
		return 0, err
	}
	v, err := h.AwaitOne(ctx)
	if err != nil {
		return 0, err
	}
	result, _ := v.(map[string]any)
	connID, _ := result["conn_id"].(float64)
	return uint64(connID), nil
}

// runSignalHandler posts EXIT on a configured exit signal, and on SIGINT
// targets the registered interruptible cancel function if one exists,
// consuming the registration. A SIGINT with no interruptible registered
// (including a repeated one) behaves like SIGTERM.
func (c *Controller) runSignalHandler(ctx context.Context) error {
	sigs := make(chan os.Signal, 4)
	for _, name := range c.cfg.ExitSignals {
		if s, ok := signalNames[name]; ok {
			signal.Notify(sigs, s)
		}
	}
	signal.Notify(sigs, syscall.SIGINT)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-sigs:
			if sig == syscall.SIGINT {
				c.interruptMu.Lock()
				fn := c.interruptFn
				c.interruptFn = nil
				c.interruptMu.Unlock()
				if fn != nil {
					c.logger.Info("SIGINT: cancelling interruptible task")
					fn()
					continue
				}
			}
			c.logger.Info("signal received, posting EXIT", slog.String("signal", sig.String()))
			c.post(ofevent.Exit)
			return nil
		}
	}
}
