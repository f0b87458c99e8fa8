package loginflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Loopback receives the provider redirect on 127.0.0.1 so the browser can
// hand the result back to the CLI without copy and paste.
type Loopback struct {
	ln     net.Listener
	srv    *http.Server
	urls   chan string
	log    zerolog.Logger
	path   string
	closed chan struct{}
}

// NewLoopback listens on an ephemeral localhost port.
func NewLoopback(log zerolog.Logger) (*Loopback, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for login redirect: %w", err)
	}
	l := &Loopback{
		ln:     ln,
		urls:   make(chan string, 1),
		log:    log,
		path:   "/callback",
		closed: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(l.path, l.handle)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		defer close(l.closed)
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Debug().Err(err).Msg("login redirect listener stopped")
		}
	}()
	return l, nil
}

// RedirectURL is the URL to register as the login redirect.
func (l *Loopback) RedirectURL() string {
	return "http://" + l.ln.Addr().String() + l.path
}

func (l *Loopback) handle(w http.ResponseWriter, r *http.Request) {
	full := "http://" + l.ln.Addr().String() + r.URL.RequestURI()
	select {
	case l.urls <- full:
	default:
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "Login received. You can close this window and return to the terminal.")
}

// Wait returns the first redirect URL received, or ctx's error.
func (l *Loopback) Wait(ctx context.Context) (string, error) {
	select {
	case u := <-l.urls:
		return u, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the listener.
func (l *Loopback) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := l.srv.Shutdown(ctx)
	<-l.closed
	return err
}
