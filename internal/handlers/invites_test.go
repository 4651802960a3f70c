package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/teamchat/internal/handlers/testutil"
	"github.com/charlesng35/teamchat/internal/models"
)

type invitePayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Shareable   bool   `json:"shareable"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
	Status      string `json:"status"`
}

type inviteCreatedPayload struct {
	Invite     invitePayload `json:"invite"`
	Token      string        `json:"token"`
	Link       string        `json:"link"`
	EmailSent  bool          `json:"email_sent"`
	EmailError string        `json:"email_error"`
}

type acceptPayload struct {
	Invite         invitePayload          `json:"invite"`
	WorkspaceID    string                 `json:"workspace_id"`
	Role           string                 `json:"role"`
	User           testutil.UserPayload   `json:"user"`
	AccountCreated bool                   `json:"account_created"`
	Token          *testutil.TokenPayload `json:"token"`
}

type inviteFixture struct {
	env       *testutil.Env
	owner     testutil.Session
	workspace workspacePayload
}

func newInviteFixture(t *testing.T) *inviteFixture {
	t.Helper()

	env := testutil.NewEnv(t)
	owner := env.Register("owner@example.com", testPassword, "Olivia Owner")
	return &inviteFixture{
		env:       env,
		owner:     owner,
		workspace: createWorkspace(t, env, owner.Token.AccessToken, "Acme"),
	}
}

func (f *inviteFixture) invite(t *testing.T, email string) inviteCreatedPayload {
	t.Helper()

	w := f.env.Request(http.MethodPost, "/api/workspaces/"+f.workspace.ID+"/invites",
		map[string]string{"email": email, "message": "Come chat"}, f.owner.Token.AccessToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created inviteCreatedPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &created)
	require.NotEmpty(t, created.Token)
	return created
}

func (f *inviteFixture) accept(t *testing.T, body map[string]string, token string) *httptest.ResponseRecorder {
	t.Helper()
	return f.env.Request(http.MethodPost, "/api/auth/invites/accept", body, token)
}

func TestInviteHandler_EndToEndNewAccount(t *testing.T) {
	f := newInviteFixture(t)

	created := f.invite(t, "Bob@Example.com")
	require.Equal(t, "bob@example.com", created.Invite.Email)
	require.Equal(t, models.InviteStatusPending, created.Invite.Status)
	require.Equal(t, models.WorkspaceRoleMember, created.Invite.Role)
	require.True(t, created.EmailSent)
	require.Empty(t, created.EmailError)
	require.Equal(t, testutil.BaseURL+"?token="+created.Token, created.Link)

	sent := f.env.Mailer.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, []string{"bob@example.com"}, sent[0].To)
	require.Contains(t, sent[0].Body, created.Link)

	lookup := f.env.Request(http.MethodGet, "/api/auth/invites/"+created.Token, nil, "")
	require.Equal(t, http.StatusOK, lookup.Code, lookup.Body.String())
	var looked invitePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, lookup).Data, &looked)
	require.Equal(t, created.Invite.ID, looked.ID)
	require.Equal(t, models.InviteStatusPending, looked.Status)

	accepted := f.accept(t, map[string]string{
		"token":        created.Token,
		"email":        "bob@example.com",
		"password":     testPassword,
		"display_name": "Bob",
	}, "")
	require.Equal(t, http.StatusCreated, accepted.Code, accepted.Body.String())
	var result acceptPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, accepted).Data, &result)
	require.True(t, result.AccountCreated)
	require.Equal(t, models.InviteStatusAccepted, result.Invite.Status)
	require.Equal(t, f.workspace.ID, result.WorkspaceID)
	require.Equal(t, "bob@example.com", result.User.Email)
	require.NotNil(t, result.Token)

	// the issued token grants access to the joined workspace
	members := f.env.Request(http.MethodGet, "/api/workspaces/"+f.workspace.ID+"/members", nil, result.Token.AccessToken)
	require.Equal(t, http.StatusOK, members.Code, members.Body.String())
	var items []memberPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, members).Data, &items)
	require.Len(t, items, 2)

	f.env.Login("bob@example.com", testPassword)

	again := f.accept(t, map[string]string{
		"token":    created.Token,
		"email":    "bob@example.com",
		"password": testPassword,
	}, "")
	testutil.RequireError(t, again, http.StatusConflict, "INVITE_ALREADY_ACCEPTED")
}

func TestInviteHandler_AcceptWithSession(t *testing.T) {
	f := newInviteFixture(t)
	carol := f.env.Register("carol@example.com", testPassword, "Carol")
	dave := f.env.Register("dave@example.com", testPassword, "Dave")

	forCarol := f.invite(t, "carol@example.com")

	mismatch := f.accept(t, map[string]string{"token": forCarol.Token}, dave.Token.AccessToken)
	testutil.RequireError(t, mismatch, http.StatusForbidden, "INVITE_EMAIL_MISMATCH")

	// a session wins over any supplied credentials
	accepted := f.accept(t, map[string]string{
		"token":    forCarol.Token,
		"email":    "someone-else@example.com",
		"password": "ignored-password",
	}, carol.Token.AccessToken)
	require.Equal(t, http.StatusOK, accepted.Code, accepted.Body.String())
	var result acceptPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, accepted).Data, &result)
	require.False(t, result.AccountCreated)
	require.Equal(t, carol.User.ID, result.User.ID)
	require.Nil(t, result.Token)

	stale := f.accept(t, map[string]string{"token": forCarol.Token}, "not-a-jwt")
	testutil.RequireError(t, stale, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestInviteHandler_LookupFailures(t *testing.T) {
	f := newInviteFixture(t)

	unknown := f.env.Request(http.MethodGet, "/api/auth/invites/unknown-token", nil, "")
	testutil.RequireError(t, unknown, http.StatusNotFound, "INVITE_NOT_FOUND")

	created := f.invite(t, "late@example.com")
	require.NoError(t, f.env.DB.Model(&models.WorkspaceInvite{}).
		Where("id = ?", created.Invite.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error)

	expired := f.env.Request(http.MethodGet, "/api/auth/invites/"+created.Token, nil, "")
	testutil.RequireError(t, expired, http.StatusGone, "INVITE_EXPIRED")

	accept := f.accept(t, map[string]string{
		"token":    created.Token,
		"email":    "late@example.com",
		"password": testPassword,
	}, "")
	testutil.RequireError(t, accept, http.StatusGone, "INVITE_EXPIRED")

	var count int64
	require.NoError(t, f.env.DB.Model(&models.User{}).Where("email = ?", "late@example.com").Count(&count).Error)
	require.Zero(t, count)
}

func TestInviteHandler_AuthorizationAndDuplicates(t *testing.T) {
	f := newInviteFixture(t)
	member := f.env.Register("member@example.com", testPassword, "Member")
	_, err := f.env.Services.Workspaces.AddMember(context.Background(), f.workspace.ID, member.User.ID, models.WorkspaceRoleMember)
	require.NoError(t, err)

	forbidden := f.env.Request(http.MethodPost, "/api/workspaces/"+f.workspace.ID+"/invites",
		map[string]string{"email": "friend@example.com"}, member.Token.AccessToken)
	testutil.RequireError(t, forbidden, http.StatusForbidden, "INVITE_FORBIDDEN")

	list := f.env.Request(http.MethodGet, "/api/workspaces/"+f.workspace.ID+"/invites", nil, member.Token.AccessToken)
	testutil.RequireError(t, list, http.StatusForbidden, "INVITE_FORBIDDEN")

	f.invite(t, "friend@example.com")
	duplicate := f.env.Request(http.MethodPost, "/api/workspaces/"+f.workspace.ID+"/invites",
		map[string]string{"email": "FRIEND@example.com"}, f.owner.Token.AccessToken)
	testutil.RequireError(t, duplicate, http.StatusConflict, "INVITE_PENDING")

	invalid := f.env.Request(http.MethodPost, "/api/workspaces/"+f.workspace.ID+"/invites",
		map[string]string{"email": "not-an-email"}, f.owner.Token.AccessToken)
	testutil.RequireError(t, invalid, http.StatusBadRequest, "BAD_REQUEST")
}

func TestInviteHandler_CancelAndList(t *testing.T) {
	f := newInviteFixture(t)
	token := f.owner.Token.AccessToken

	byID := f.invite(t, "first@example.com")
	byToken := f.invite(t, "second@example.com")

	list := f.env.Request(http.MethodGet, "/api/workspaces/"+f.workspace.ID+"/invites", nil, token)
	require.Equal(t, http.StatusOK, list.Code, list.Body.String())
	var items []invitePayload
	listResp := testutil.DecodeResponse(t, list)
	testutil.DecodeInto(t, listResp.Data, &items)
	require.Len(t, items, 2)
	require.Equal(t, 2, listResp.Meta.Total)

	cancelled := f.env.Request(http.MethodDelete, "/api/invites/"+byID.Invite.ID, nil, token)
	require.Equal(t, http.StatusOK, cancelled.Code, cancelled.Body.String())
	var invite invitePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, cancelled).Data, &invite)
	require.Equal(t, models.InviteStatusCancelled, invite.Status)

	cancelledToken := f.env.Request(http.MethodPost, "/api/invites/cancel", map[string]string{"token": byToken.Token}, token)
	require.Equal(t, http.StatusOK, cancelledToken.Code, cancelledToken.Body.String())

	accept := f.accept(t, map[string]string{
		"token":    byID.Token,
		"email":    "first@example.com",
		"password": testPassword,
	}, "")
	testutil.RequireError(t, accept, http.StatusConflict, "INVITE_CANCELLED")

	twice := f.env.Request(http.MethodDelete, "/api/invites/"+byID.Invite.ID, nil, token)
	testutil.RequireError(t, twice, http.StatusConflict, "INVITE_CANCELLED")
}

func TestInviteHandler_ShareableLink(t *testing.T) {
	f := newInviteFixture(t)

	w := f.env.Request(http.MethodPost, "/api/workspaces/"+f.workspace.ID+"/invites/link",
		map[string]any{"expires_in_days": 2}, f.owner.Token.AccessToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var link inviteCreatedPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &link)
	require.True(t, link.Invite.Shareable)
	require.Empty(t, link.Invite.Email)
	require.True(t, strings.HasPrefix(link.Link, testutil.BaseURL+"?token="))
	require.Empty(t, f.env.Mailer.Sent())

	erin := f.env.Register("erin@example.com", testPassword, "Erin")
	accepted := f.accept(t, map[string]string{"token": link.Token}, erin.Token.AccessToken)
	require.Equal(t, http.StatusOK, accepted.Code, accepted.Body.String())
}
