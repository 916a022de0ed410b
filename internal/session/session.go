// Package session owns the authenticated session: the bearer credential,
// the process-wide socket connection, and the global teardown that any
// authentication failure must trigger regardless of where it surfaced.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/overwork-game/client/internal/config"
	"github.com/overwork-game/client/internal/intercept"
	"github.com/overwork-game/client/internal/rest"
	"github.com/overwork-game/client/internal/socket"
	"github.com/overwork-game/client/pkg/proto"
)

// refreshLead is how long before token expiry a refresh is attempted.
const refreshLead = time.Minute

// Controller is the session lifecycle owner. All access to the single
// connection goes through it.
type Controller struct {
	cfg *config.Config
	reg *intercept.Registry
	log *zap.Logger

	rest *rest.Client
	sock *socket.Socket

	mu           sync.Mutex
	token        string
	account      *proto.Account
	refreshTimer *time.Timer
	torndown     bool

	loggedOut chan struct{}
	forceReg  *intercept.Registration
}

// New wires the session controller. The socket stays down until Login.
func New(cfg *config.Config, reg *intercept.Registry, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		cfg:       cfg,
		reg:       reg,
		log:       log,
		loggedOut: make(chan struct{}, 1),
	}
	c.rest = rest.New(cfg.APIBaseURL, c.Token, log.Named("rest"))
	// Any 401 from any REST call tears the whole session down.
	c.rest.OnUnauthorized(c.teardown)
	c.sock = socket.New(socket.Options{
		URL:               cfg.SocketURL,
		DialTimeout:       cfg.DialTimeout,
		ReconnectAttempts: cfg.ReconnectAttempts,
		BackoffMin:        cfg.BackoffMin,
		BackoffMax:        cfg.BackoffMax,
	}, reg, log.Named("socket"))
	c.sock.OnAuthReject(c.teardown)
	c.forceReg = reg.Register(proto.EvtForceDisconnect, func(proto.Frame) {
		c.log.Warn("forced disconnect from server")
		c.teardown()
	}, 0)
	return c
}

// REST exposes the REST collaborator client.
func (c *Controller) REST() *rest.Client { return c.rest }

// Socket exposes the singleton connection adapter.
func (c *Controller) Socket() *socket.Socket { return c.sock }

// Token returns the current bearer credential, empty when logged out.
func (c *Controller) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Account returns the authenticated account, nil when logged out.
func (c *Controller) Account() *proto.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

// LoggedOut signals session teardown (logout, 401, rejected credential,
// forced disconnect). The owner routes to the login entry point.
func (c *Controller) LoggedOut() <-chan struct{} { return c.loggedOut }

// Login authenticates, stores the credential, and brings the connection
// up for it. A prior connection for an older credential is torn down by
// the adapter before the new dial.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	acct, err := c.rest.Login(ctx, email, password)
	if err != nil {
		return err
	}
	c.adopt(acct)
	return c.sock.Connect(ctx, acct.Token)
}

// Logout releases the credential, closes the connection, and signals the
// redirect. The server-side logout is best effort.
func (c *Controller) Logout(ctx context.Context) {
	if err := c.rest.Logout(ctx); err != nil {
		c.log.Debug("server logout failed", zap.Error(err))
	}
	c.teardown()
}

// Close releases resources without signaling a logout redirect.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.mu.Unlock()
	c.reg.Unregister(c.forceReg)
	c.sock.Disconnect()
}

func (c *Controller) adopt(acct *proto.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = acct.Token
	c.account = acct
	c.torndown = false
	c.scheduleRefreshLocked(acct.Token)
}

// scheduleRefreshLocked arms a proactive refresh shortly before the
// token's exp claim. The token is decoded without verification; the
// server remains the authority, this only picks a timer.
func (c *Controller) scheduleRefreshLocked(token string) {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return
	}
	delay := time.Until(time.Unix(int64(exp), 0)) - refreshLead
	if delay <= 0 {
		delay = time.Second
	}
	c.refreshTimer = time.AfterFunc(delay, c.refresh)
}

func (c *Controller) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	acct, err := c.rest.Refresh(ctx)
	if err != nil {
		// A 401 already tore the session down through the global hook.
		c.log.Warn("token refresh failed", zap.Error(err))
		return
	}
	c.adopt(acct)
	if err := c.sock.Connect(ctx, acct.Token); err != nil {
		c.log.Warn("reconnect with refreshed token failed", zap.Error(err))
	}
}

// teardown clears all local session state exactly once per session and
// signals the redirect to login. Safe to call from any goroutine.
func (c *Controller) teardown() {
	c.mu.Lock()
	if c.torndown {
		c.mu.Unlock()
		return
	}
	c.torndown = true
	c.token = ""
	c.account = nil
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.mu.Unlock()

	c.sock.Disconnect()
	select {
	case c.loggedOut <- struct{}{}:
	default:
	}
}
