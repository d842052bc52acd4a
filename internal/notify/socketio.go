package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/sosappend/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Options configures a SocketIO notifier.
type Options struct {
	URL       string
	Namespace string
	Event     string
	// AckEvent, when set, must be received before Committed returns.
	AckEvent           string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// SocketIO emits each commit as a socket.io event over a short-lived connection.
type SocketIO struct {
	opts    Options
	baseURL string
	path    string
}

// NewSocketIO validates opts.
func NewSocketIO(opts Options) (*SocketIO, error) {
	parsed, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("notify url %q needs a scheme and host", opts.URL)
	}
	if opts.Event == "" {
		return nil, errors.New("notify event name is empty")
	}
	if opts.Namespace == "" {
		opts.Namespace = "/"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &SocketIO{
		opts:    opts,
		baseURL: fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host),
		path:    parsed.Path,
	}, nil
}

// Committed connects, emits e and disconnects.
func (s *SocketIO) Committed(ctx context.Context, e Event) error {
	logger := ctxlog.FromContext(ctx).With("notifier", "socketio", "url", s.opts.URL, "event", s.opts.Event)

	opCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	opts := socket.DefaultOptions()
	opts.SetPath(s.path)
	opts.SetReconnection(false)
	if s.opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(s.baseURL, opts)
	io := manager.Socket(s.opts.Namespace, opts)
	defer io.Disconnect()

	done := make(chan error, 2)
	payload := e.payload()

	if s.opts.AckEvent != "" {
		io.Once(types.EventName(s.opts.AckEvent), func(...any) {
			logger.Debug("Acknowledgement received", "ack_event", s.opts.AckEvent)
			done <- nil
		})
	}
	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected, emitting commit event", "sid", io.Id(), "version", e.Version)
		io.Emit(s.opts.Event, payload)
		if s.opts.AckEvent == "" {
			done <- nil
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		done <- fmt.Errorf("socket.io connection failed: %w", err)
	})

	io.Connect()

	select {
	case err := <-done:
		if err == nil {
			logger.Info("Commit announced.", "version", e.Version)
		}
		return err
	case <-opCtx.Done():
		return fmt.Errorf("timed out after %v announcing version %d: %w", s.opts.Timeout, e.Version, opCtx.Err())
	}
}
