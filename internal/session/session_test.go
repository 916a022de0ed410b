package session

import (
	"context"
	"testing"
	"time"

	"github.com/overwork-game/client/internal/backendtest"
	"github.com/overwork-game/client/internal/config"
	"github.com/overwork-game/client/internal/intercept"
	"github.com/overwork-game/client/internal/socket"
	"github.com/overwork-game/client/pkg/proto"
)

func newSession(t *testing.T, b *backendtest.Backend) (*Controller, *intercept.Registry) {
	t.Helper()
	cfg := &config.Config{
		APIBaseURL:        b.APIBase(),
		SocketURL:         b.SocketURL(),
		DialTimeout:       2 * time.Second,
		ReconnectAttempts: 2,
		BackoffMin:        10 * time.Millisecond,
		BackoffMax:        50 * time.Millisecond,
	}
	reg := intercept.NewRegistry(nil)
	c := New(cfg, reg, nil)
	t.Cleanup(c.Close)
	return c, reg
}

func waitLoggedOut(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.LoggedOut():
	case <-time.After(2 * time.Second):
		t.Fatal("no logout signal")
	}
}

func TestLogin_ConnectsSocketWithCredential(t *testing.T) {
	b := backendtest.New()
	defer b.Close()
	c, _ := newSession(t, b)

	if err := c.Login(context.Background(), "dev@example.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if c.Token() != backendtest.Token {
		t.Fatalf("token %q, want the issued credential", c.Token())
	}
	if got := c.Socket().Status(); got != socket.StatusConnected {
		t.Fatalf("socket status %q, want connected", got)
	}
	if c.Account() == nil || c.Account().ID != "me" {
		t.Fatalf("account not adopted: %+v", c.Account())
	}
}

func TestRest401_TearsDownWholeSession(t *testing.T) {
	b := backendtest.New()
	defer b.Close()
	c, _ := newSession(t, b)

	if err := c.Login(context.Background(), "dev@example.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// The 401 comes from an unrelated feature's call, not from auth.
	b.SetAlways401(true)
	if _, err := c.REST().Rooms(context.Background()); err == nil {
		t.Fatal("expected an error from the 401 response")
	}

	waitLoggedOut(t, c)
	if c.Token() != "" || c.Account() != nil {
		t.Fatal("session state not cleared after 401")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && c.Socket().Status() != socket.StatusDisconnected {
		time.Sleep(5 * time.Millisecond)
	}
	if got := c.Socket().Status(); got != socket.StatusDisconnected {
		t.Fatalf("socket status %q after teardown, want disconnected", got)
	}
}

func TestForceDisconnect_TearsDownSession(t *testing.T) {
	b := backendtest.New()
	defer b.Close()
	c, _ := newSession(t, b)

	if err := c.Login(context.Background(), "dev@example.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && b.ConnCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if err := b.Send(proto.EvtForceDisconnect, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitLoggedOut(t, c)
}

func TestLogout_ClearsStateAndSignals(t *testing.T) {
	b := backendtest.New()
	defer b.Close()
	c, _ := newSession(t, b)

	if err := c.Login(context.Background(), "dev@example.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	c.Logout(context.Background())
	waitLoggedOut(t, c)
	if c.Token() != "" {
		t.Fatal("token survived logout")
	}
}
