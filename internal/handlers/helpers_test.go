package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/teamchat/internal/handlers/testutil"
)

const testPassword = "correct-horse"

type workspacePayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	OwnerID string `json:"owner_id"`
}

type channelPayload struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
}

type messagePayload struct {
	ID             int64   `json:"id"`
	Content        string  `json:"content"`
	Type           string  `json:"type"`
	AuthorID       string  `json:"author_id"`
	ConversationID *string `json:"conversation_id"`
	ChannelID      *string `json:"channel_id"`
}

func createWorkspace(t *testing.T, env *testutil.Env, token, name string) workspacePayload {
	t.Helper()

	w := env.Request(http.MethodPost, "/api/workspaces", map[string]string{"name": name}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var workspace workspacePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &workspace)
	require.NotEmpty(t, workspace.ID)
	return workspace
}

