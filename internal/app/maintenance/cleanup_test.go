package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/cache"
	testutil "github.com/charlesng35/teamchat/internal/database/testutil"
	"github.com/charlesng35/teamchat/internal/models"
	"github.com/charlesng35/teamchat/internal/services"
	"github.com/charlesng35/teamchat/pkg/mail"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	workspace := seedWorkspace(t, db)
	stale := seedInvite(t, db, workspace, "stale@example.com", now.Add(-time.Hour))
	fresh := seedInvite(t, db, workspace, "fresh@example.com", now.Add(time.Hour))

	store := cache.NewDatabaseStore(db).WithClock(clock)
	require.NoError(t, store.Set(context.Background(), "old", []byte("1"), time.Minute))
	require.NoError(t, db.Model(&models.CacheEntry{}).Where(map[string]any{"key": "old"}).
		Update("expires_at", now.Add(-time.Minute)).Error)
	require.NoError(t, store.Set(context.Background(), "live", []byte("1"), time.Hour))

	invites := newInviteService(t, db, clock)

	c := NewCleaner(invites, store, WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))))
	require.NoError(t, c.RunOnce(context.Background()))

	require.Equal(t, models.InviteStatusExpired, inviteStatus(t, db, stale.ID))
	require.Equal(t, models.InviteStatusPending, inviteStatus(t, db, fresh.ID))

	_, found, err := store.Get(context.Background(), "old")
	require.NoError(t, err)
	require.False(t, found)
	_, found, err = store.Get(context.Background(), "live")
	require.NoError(t, err)
	require.True(t, found)
}

func TestCleanerRunOnceCollectsFailures(t *testing.T) {
	inviteErr := errors.New("invites down")
	purgeErr := errors.New("cache down")

	c := NewCleaner(
		stubExpirer{err: inviteErr},
		stubPurger{err: purgeErr},
	)

	err := c.RunOnce(context.Background())
	require.ErrorIs(t, err, inviteErr)
	require.ErrorIs(t, err, purgeErr)
	require.Len(t, multierr.Errors(err), 2)
}

func TestCleanerSkipsNilJobs(t *testing.T) {
	c := NewCleaner(nil, nil)
	require.NoError(t, c.RunOnce(context.Background()))
	require.NoError(t, c.Start())
	<-c.Stop().Done()
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	c := NewCleaner(stubExpirer{}, nil, WithInviteSchedule("not a schedule"))
	require.Error(t, c.Start())
}

func TestCleanerStartSchedulesJobs(t *testing.T) {
	expirer := &countingExpirer{}
	c := NewCleaner(expirer, nil, WithInviteSchedule("@every 10ms"), WithPurgeSchedule("@every 1h"))
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return expirer.calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	<-c.Stop().Done()
}

type stubExpirer struct{ err error }

func (s stubExpirer) ExpireStale(context.Context) (int64, error) { return 0, s.err }

type stubPurger struct{ err error }

func (s stubPurger) PurgeExpired(context.Context) (int64, error) { return 0, s.err }

type countingExpirer struct{ calls atomic.Int64 }

func (c *countingExpirer) ExpireStale(context.Context) (int64, error) {
	c.calls.Add(1)
	return 0, nil
}

func newInviteService(t *testing.T, db *gorm.DB, clock func() time.Time) *services.InviteService {
	t.Helper()

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	workspaces, err := services.NewWorkspaceService(db)
	require.NoError(t, err)

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{})
	require.NoError(t, err)

	invites, err := services.NewInviteService(db, mailer, users, workspaces, services.WithInviteClock(clock))
	require.NoError(t, err)
	return invites
}

func seedWorkspace(t *testing.T, db *gorm.DB) *models.Workspace {
	t.Helper()

	owner := &models.User{Email: "owner@example.com", DisplayName: "Owner", Password: "x"}
	require.NoError(t, db.Create(owner).Error)

	workspace := &models.Workspace{Name: "Acme", Slug: "acme", OwnerID: owner.ID}
	require.NoError(t, db.Create(workspace).Error)
	return workspace
}

func seedInvite(t *testing.T, db *gorm.DB, workspace *models.Workspace, email string, expiresAt time.Time) *models.WorkspaceInvite {
	t.Helper()

	invite := &models.WorkspaceInvite{
		Email:       email,
		WorkspaceID: workspace.ID,
		InviterID:   workspace.OwnerID,
		TokenHash:   "hash-" + email,
		Role:        models.WorkspaceRoleMember,
		Status:      models.InviteStatusPending,
		ExpiresAt:   expiresAt.UTC(),
	}
	require.NoError(t, db.Create(invite).Error)
	return invite
}

func inviteStatus(t *testing.T, db *gorm.DB, id string) string {
	t.Helper()

	var invite models.WorkspaceInvite
	require.NoError(t, db.First(&invite, "id = ?", id).Error)
	return invite.Status
}
