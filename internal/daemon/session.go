package daemon

import (
	"context"
	"fmt"
	"sync"

	"github.com/srvmarket/srvchat/internal/adapter"
	"github.com/srvmarket/srvchat/internal/bus"
	"github.com/srvmarket/srvchat/internal/chat"
	"github.com/srvmarket/srvchat/internal/config"
	"github.com/srvmarket/srvchat/internal/remote"
	intsync "github.com/srvmarket/srvchat/internal/sync"
	"go.uber.org/zap"
)

// Session binds the synchronizer to the credential of one profile. It owns the
// remote client and the push watcher built for that credential.
type Session struct {
	profileName string
	configPath  string
	sync        *intsync.Synchronizer
	bus         *bus.Bus
	logger      *zap.Logger

	mu       sync.Mutex
	settings config.Profile
	client   *remote.Client
	watcher  *intsync.Watcher
	// ctx outlives requests; background loops started on sign-in hang off it.
	ctx context.Context
}

// NewSession creates a signed-out session. Start binds the configured credential.
func NewSession(profileName, configPath string, settings config.Profile, s *intsync.Synchronizer, b *bus.Bus, logger *zap.Logger) *Session {
	return &Session{
		profileName: profileName,
		configPath:  configPath,
		settings:    settings,
		sync:        s,
		bus:         b,
		logger:      logger,
		ctx:         context.Background(),
	}
}

// Start signs in with the credential stored in the profile, if any.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	settings := s.settings
	s.mu.Unlock()

	if !settings.SignedIn() {
		s.logger.Info("no credential configured, waiting for sign-in")
		return nil
	}
	return s.SignIn(ctx, settings.ViewerID, settings.Token, settings.Endpoint, false)
}

// Stop disconnects the push watcher.
func (s *Session) Stop() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	w.Stop()
}

// Endpoint returns the remote store URL in use, or the configured one.
func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client.Endpoint()
	}
	return s.settings.Endpoint
}

// SignIn rebinds the synchronizer to viewerID. An empty endpoint keeps the configured
// one. With persist set the credential is written to the profile config.
func (s *Session) SignIn(_ context.Context, viewerID, token, endpoint string, persist bool) error {
	if viewerID == "" || token == "" {
		return chat.ErrAuthenticationRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if endpoint == "" {
		endpoint = s.settings.Endpoint
	}
	if endpoint == "" {
		return &chat.ValidationError{Message: "Endpoint is required"}
	}

	id := remote.Identity{ViewerID: viewerID, Token: token}
	if s.client != nil && s.client.Endpoint() == endpoint {
		s.client = s.client.WithIdentity(id)
	} else {
		s.client = remote.New(endpoint, id,
			remote.WithTimeout(s.settings.Timeout.Duration),
			remote.WithLogger(s.logger.Named("remote")),
		)
	}

	if err := s.sync.SignIn(viewerID, adapter.NewService(s.client)); err != nil {
		return err
	}
	s.sync.StartAutoRefresh(s.ctx)
	s.restartWatcherLocked()

	s.settings.Endpoint, s.settings.ViewerID, s.settings.Token = endpoint, viewerID, token
	if persist {
		if err := s.persistLocked(); err != nil {
			return fmt.Errorf("persist credential: %w", err)
		}
	}
	s.logger.Info("session bound", zap.String("viewer_id", viewerID), zap.String("endpoint", endpoint))
	return nil
}

// SignOut forgets the viewer, its local snapshot and the stored credential.
func (s *Session) SignOut(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.watcher.Stop()
	s.watcher = nil
	s.sync.SignOut()

	wasStored := s.settings.Token != ""
	s.settings.ViewerID, s.settings.Token = "", ""
	if wasStored {
		if err := s.persistLocked(); err != nil {
			return fmt.Errorf("forget credential: %w", err)
		}
	}
	return nil
}

func (s *Session) restartWatcherLocked() {
	s.watcher.Stop()
	s.watcher = nil
	if !s.settings.Push {
		return
	}
	s.watcher = intsync.NewWatcher(s.client, s.sync, s.bus, s.logger.Named("push"))
	s.watcher.Start(s.ctx)
}

func (s *Session) persistLocked() error {
	cfg, err := config.LoadOrEmpty(s.configPath)
	if err != nil {
		return err
	}
	p := cfg.Profiles[s.profileName]
	p.Endpoint, p.ViewerID, p.Token = s.settings.Endpoint, s.settings.ViewerID, s.settings.Token
	cfg.SetProfile(s.profileName, p)
	return config.Save(s.configPath, cfg)
}
