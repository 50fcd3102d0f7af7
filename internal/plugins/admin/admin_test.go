package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multibot/entity"
	"multibot/internal/botmgr"
)

type stubManager struct {
	cfg      *entity.BotConfig
	statuses []botmgr.Status
	startErr error
	stopErr  error
	started  []string
	stopped  []string
}

func (s *stubManager) Config(_ string) (*entity.BotConfig, error) { return s.cfg, nil }
func (s *stubManager) StartBot(_ context.Context, id string) error {
	s.started = append(s.started, id)
	return s.startErr
}
func (s *stubManager) StopBot(_ context.Context, id string) error {
	s.stopped = append(s.stopped, id)
	return s.stopErr
}
func (s *stubManager) RestartBot(_ context.Context, _ string) error { return nil }
func (s *stubManager) Status(id string) (botmgr.Status, error) {
	return botmgr.Status{BotID: id, State: botmgr.StateRunning}, nil
}
func (s *stubManager) ListStatuses() []botmgr.Status { return s.statuses }

type stubStats struct{ snapshot map[string]entity.Delta }

func (s *stubStats) Snapshot() map[string]entity.Delta { return s.snapshot }

func newTestPlugin(mgr *stubManager, stats *stubStats) *Plugin {
	c := Class{Manager: mgr, Stats: stats}
	return c.New(nil).(*Plugin)
}

func TestRequireAdmin_RejectsNonAdmin(t *testing.T) {
	mgr := &stubManager{cfg: &entity.BotConfig{Access: entity.Access{Admin: []int64{1}}}}
	p := newTestPlugin(mgr, &stubStats{})
	p.botID = "a"

	ok := p.requireAdminUserID(2)
	assert.False(t, ok)
}

func TestRequireAdmin_AllowsAdmin(t *testing.T) {
	mgr := &stubManager{cfg: &entity.BotConfig{Access: entity.Access{Admin: []int64{7}}}}
	p := newTestPlugin(mgr, &stubStats{})
	p.botID = "a"

	ok := p.requireAdminUserID(7)
	assert.True(t, ok)
}

func TestStubManager_StartBotRecordsTargetAndReturnsError(t *testing.T) {
	mgr := &stubManager{startErr: assert.AnError}
	p := newTestPlugin(mgr, &stubStats{})
	p.botID = "admin-bot"

	err := mgr.StartBot(context.Background(), "b")
	require.Error(t, err)
	assert.Equal(t, []string{"b"}, mgr.started)
}

var _ ManagerController = (*stubManager)(nil)
var _ StatsSnapshotter = (*stubStats)(nil)
