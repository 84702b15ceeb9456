package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/drixzor/drode/internal/metrics"
)

const successPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Drode</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em">
<h2>Authorization complete</h2>
<p>You can close this window and return to Drode.</p>
</body>
</html>
`

type redirect struct {
	code        string
	state       string
	err         string
	description string
}

// awaitCallback serves a single /callback request on the loopback address,
// or gives up after the flow timeout. The listener stays up while the code
// is exchanged. The flow's own state is evicted
// before any failure is reported, so a finished listener never leaves a
// pending entry behind.
func (m *Manager) awaitCallback(p Provider, state string) {
	ln, err := m.listen("tcp", m.callbackAddr)
	if err != nil {
		m.evict(state)
		_ = m.fail(p, fmt.Sprintf("Failed to start callback server: %v", err))
		return
	}

	got := make(chan redirect, 1)
	var once sync.Once
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		first := false
		once.Do(func() { first = true })
		if !first {
			http.Error(w, "callback already received", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, successPage)
		q := r.URL.Query()
		got <- redirect{
			code:        q.Get("code"),
			state:       q.Get("state"),
			err:         q.Get("error"),
			description: q.Get("error_description"),
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case rd := <-got:
		// repeated redirects get 410 until the exchange is over
		m.handleRedirect(p, state, rd)
		m.shutdown(srv)
	case <-timer.C:
		m.shutdown(srv)
		m.evict(state)
		_ = m.fail(p, "OAuth callback timed out")
	}
}

func (m *Manager) shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
}

// handleRedirect consumes the pending flow named by the redirect's state and
// exchanges its code. listener and own identify the flow that opened the
// listener; failures that match no flow are reported against it.
func (m *Manager) handleRedirect(listener Provider, own string, rd redirect) {
	flow, ok, n := m.pending.take(rd.state)
	if rd.state != own {
		m.evict(own)
	}
	if !ok {
		_ = m.fail(listener, "Invalid OAuth state parameter")
		return
	}
	metrics.SetOAuthPending(n)
	if rd.err != "" {
		msg := "authorization denied: " + rd.err
		if rd.description != "" {
			msg += " (" + rd.description + ")"
		}
		_ = m.fail(flow.provider, msg)
		return
	}
	if rd.code == "" {
		_ = m.fail(flow.provider, "authorization code missing from callback")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()
	_ = m.Exchange(ctx, flow.provider, rd.code, flow.verifier)
}
