package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/events"
	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/ajramos/mailsync/internal/push"
	"github.com/rs/zerolog"
)

const defaultPollInterval = 60 * time.Second

// SyncServiceImpl implements SyncService. It owns two independent producers of
// refreshes, the push channel and the polling timer, behind one in-flight guard.
type SyncServiceImpl struct {
	repo    MessageRepository
	folders FolderService
	views   ViewService
	state   *State
	hub     *events.Hub
	dialer  PushDialer       // Optional - nil means polling only
	creds   CredentialSource // Optional
	retry   RetryPolicy
	poll    time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	mu       sync.Mutex
	syncing  bool
	pending  bool
	lastSync time.Time
	running  bool
	cancel   context.CancelFunc
	conn     push.Conn
	wg       sync.WaitGroup
}

// NewSyncService creates a new sync service
func NewSyncService(repo MessageRepository, folders FolderService, views ViewService, state *State, hub *events.Hub) *SyncServiceImpl {
	return &SyncServiceImpl{
		repo:    repo,
		folders: folders,
		views:   views,
		state:   state,
		hub:     hub,
		retry:   FixedDelay(3 * time.Second),
		poll:    defaultPollInterval,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
}

// SetLogger sets the logger for channel and sync events
func (s *SyncServiceImpl) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// SetPushChannel enables the live-update channel
func (s *SyncServiceImpl) SetPushChannel(dialer PushDialer, creds CredentialSource) {
	s.dialer = dialer
	s.creds = creds
}

// SetRetryPolicy replaces the reconnect policy
func (s *SyncServiceImpl) SetRetryPolicy(p RetryPolicy) {
	if p != nil {
		s.retry = p
	}
}

// SetPollInterval replaces the polling period
func (s *SyncServiceImpl) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.poll = d
	}
}

// Syncing reports whether a sync or refresh is in flight
func (s *SyncServiceImpl) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// LastSync returns when the last sync round finished without error
func (s *SyncServiceImpl) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// Sync asks the server whether new mail arrived and, if so, reloads the list
// and the folders. It returns ErrSyncInFlight if another sync is running.
func (s *SyncServiceImpl) Sync(ctx context.Context) error {
	ran, err := s.guarded(ctx, false, func(ctx context.Context) error {
		res, err := s.repo.TriggerSync(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("sync: trigger failed")
			return err
		}
		if res != nil && res.NewMessageCount > 0 {
			s.logger.Info().Int("new", res.NewMessageCount).Msg("sync: new mail")
			s.refresh(ctx)
		}
		return nil
	})
	if !ran {
		return ErrSyncInFlight
	}
	return err
}

// Refresh reloads the list, when the view can receive new mail, then the folders.
// If a sync is in flight the refresh is queued behind it.
func (s *SyncServiceImpl) Refresh(ctx context.Context) error {
	_, err := s.guarded(ctx, true, func(ctx context.Context) error {
		s.refresh(ctx)
		return nil
	})
	return err
}

// guarded runs fn unless a round is in flight. With queue set, a busy guard
// records a pending refresh that the running round performs before it ends.
func (s *SyncServiceImpl) guarded(ctx context.Context, queue bool, fn func(context.Context) error) (bool, error) {
	s.mu.Lock()
	if s.syncing {
		if queue {
			s.pending = true
		}
		s.mu.Unlock()
		return false, nil
	}
	s.syncing = true
	s.mu.Unlock()
	s.hub.Publish(events.Change{Kind: events.KindSync})

	err := fn(ctx)
	for {
		s.mu.Lock()
		if !s.pending || ctx.Err() != nil {
			s.pending = false
			s.syncing = false
			if err == nil {
				s.lastSync = s.now()
			}
			s.mu.Unlock()
			break
		}
		s.pending = false
		s.mu.Unlock()
		s.refresh(ctx)
	}
	s.hub.Publish(events.Change{Kind: events.KindSync})
	return true, err
}

// refresh reloads the list before the folders so counts match the new list
func (s *SyncServiceImpl) refresh(ctx context.Context) {
	if d, ok := s.state.View.Descriptor(); ok && d.LiveUpdates() {
		if err := s.views.Reload(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("sync: list reload failed")
		}
	}
	if err := s.folders.LoadFolders(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("sync: folder reload failed")
	}
}

// Tick runs one polling round, skipping it if a sync is in flight
func (s *SyncServiceImpl) Tick(ctx context.Context) {
	if err := s.Sync(ctx); errors.Is(err, ErrSyncInFlight) {
		s.logger.Debug().Msg("sync: poll skipped, sync in flight")
	}
}

// StartAutoSync starts the polling timer and, with a valid credential, the
// push channel. Calling it while running does nothing.
func (s *SyncServiceImpl) StartAutoSync(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pollLoop(runCtx)

	if s.dialer == nil {
		s.logger.Info().Msg("sync: no push channel configured, polling only")
		return nil
	}
	if _, err := s.credential(); err != nil {
		s.logger.Warn().Err(err).Msg("sync: no valid credential, polling only")
		return nil
	}
	s.wg.Add(1)
	go s.channelLoop(runCtx)
	return nil
}

// StopAutoSync closes the channel, stops the timer and waits for both. It is idempotent.
func (s *SyncServiceImpl) StopAutoSync() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()
	s.setConnection(ConnectionInfo{Status: Disconnected})
}

func (s *SyncServiceImpl) credential() (string, error) {
	if s.creds == nil {
		return "", ErrNoCredential
	}
	token, err := s.creds()
	if err != nil {
		return "", errors.Join(ErrNoCredential, err)
	}
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

func (s *SyncServiceImpl) pollLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func (s *SyncServiceImpl) channelLoop(ctx context.Context) {
	defer s.wg.Done()

	attempt := 0
	for ctx.Err() == nil {
		s.setConnection(ConnectionInfo{Status: Connecting, Attempt: attempt})
		conn, err := s.connect(ctx)
		if err == nil {
			attempt = 0
			s.setConnection(ConnectionInfo{Status: Connected})
			s.logger.Info().Msg("push: connected")
			err = s.receive(ctx, conn)
		}
		if ctx.Err() != nil {
			return
		}

		attempt++
		delay := s.retry.Delay(attempt)
		s.setConnection(ConnectionInfo{Status: Reconnecting, Attempt: attempt, NextRetryAt: s.now().Add(delay)})
		s.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("push: channel lost, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *SyncServiceImpl) connect(ctx context.Context) (push.Conn, error) {
	token, err := s.credential()
	if err != nil {
		return nil, err
	}
	conn, err := s.dialer.Dial(ctx, token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, ctx.Err()
	}
	s.conn = conn
	s.mu.Unlock()
	return conn, nil
}

// receive handles events until the connection fails
func (s *SyncServiceImpl) receive(ctx context.Context, conn push.Conn) error {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		ev, err := conn.Receive()
		if err != nil {
			if errors.Is(err, mailapi.ErrMalformedPayload) && ctx.Err() == nil {
				s.logger.Debug().Err(err).Msg("push: ignored malformed event")
				continue
			}
			return err
		}
		if ev.Type != push.EventNewEmail {
			s.logger.Debug().Str("type", ev.Type).Msg("push: ignored event")
			continue
		}
		if err := s.Refresh(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("push: refresh failed")
		}
	}
}

func (s *SyncServiceImpl) setConnection(info ConnectionInfo) {
	s.state.Connection.set(info)
	s.hub.Publish(events.Change{Kind: events.KindConnection})
}
