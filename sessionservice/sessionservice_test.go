package sessionservice_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/smokeyworks/smokey/apiframework"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	"github.com/smokeyworks/smokey/sessionservice"
	"github.com/smokeyworks/smokey/sessionstore"
	"github.com/stretchr/testify/require"
)

func quiet() func() {
	null, _ := os.Open(os.DevNull)
	sout := os.Stdout
	serr := os.Stderr
	os.Stdout = null
	os.Stderr = null
	return func() {
		defer null.Close()
		os.Stdout = sout
		os.Stderr = serr
	}
}

// SetupService initializes a test Postgres instance with sessionstore schema.
func SetupService(t *testing.T) (context.Context, sessionservice.Service) {
	t.Helper()

	unquiet := quiet()
	t.Cleanup(unquiet)

	ctx := context.TODO()
	connStr, _, cleanup, err := libdb.SetupLocalInstance(ctx, "test", "test", "test")
	require.NoError(t, err)

	dbManager, err := libdb.NewPostgresDBManager(ctx, connStr, "")
	require.NoError(t, err)

	err = sessionstore.InitSchema(ctx, dbManager.WithoutTransaction())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, dbManager.Close())
		cleanup()
	})

	return ctx, sessionservice.New(dbManager)
}

func TestUnit_SessionService_CreateSessionValidation(t *testing.T) {
	ctx, svc := SetupService(t)

	_, err := svc.CreateSession(ctx, "", "content", nil)
	require.Error(t, err)

	_, err = svc.CreateSession(ctx, "task-1", "mystery", nil)
	require.Error(t, err)
}

func TestUnit_SessionService_LaunchReturnsDescriptor(t *testing.T) {
	ctx, svc := SetupService(t)

	payload := json.RawMessage(`{"page":"/pricing"}`)
	session, err := svc.CreateSession(ctx, "task-1", "content", payload)
	require.NoError(t, err)
	require.Equal(t, sessionstore.SessionCreated, session.Status)

	descriptor, err := svc.LaunchSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "/tools/content/editor", descriptor.Path)
	require.Equal(t, session.ID, descriptor.Query["session"])
	require.Equal(t, "task-1", descriptor.Query["task"])
	require.JSONEq(t, string(payload), string(descriptor.State))

	// A session only launches once.
	_, err = svc.LaunchSession(ctx, session.ID)
	require.ErrorIs(t, err, apiframework.ErrInvalidState)
}

func TestUnit_SessionService_CompleteAndFail(t *testing.T) {
	ctx, svc := SetupService(t)

	session, err := svc.CreateSession(ctx, "task-1", "structure", nil)
	require.NoError(t, err)

	// Results only attach to launched sessions.
	_, err = svc.CompleteSession(ctx, session.ID, json.RawMessage(`{"ok":true}`))
	require.ErrorIs(t, err, apiframework.ErrInvalidState)

	_, err = svc.LaunchSession(ctx, session.ID)
	require.NoError(t, err)

	completed, err := svc.CompleteSession(ctx, session.ID, json.RawMessage(`{"ok":true}`))
	require.NoError(t, err)
	require.Equal(t, sessionstore.SessionCompleted, completed.Status)
	require.JSONEq(t, `{"ok":true}`, string(completed.Result))

	failed, err := svc.CreateSession(ctx, "task-1", "structure", nil)
	require.NoError(t, err)
	_, err = svc.LaunchSession(ctx, failed.ID)
	require.NoError(t, err)
	got, err := svc.FailSession(ctx, failed.ID, json.RawMessage(`{"reason":"abandoned"}`))
	require.NoError(t, err)
	require.Equal(t, sessionstore.SessionFailed, got.Status)
}

func TestUnit_SessionService_ListAndDiscard(t *testing.T) {
	ctx, svc := SetupService(t)

	first, err := svc.CreateSession(ctx, "task-1", "content", nil)
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, "task-1", "structure", nil)
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, "task-2", "content", nil)
	require.NoError(t, err)

	sessions, err := svc.ListTaskSessions(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	require.NoError(t, svc.DiscardSession(ctx, first.ID))
	_, err = svc.GetSession(ctx, first.ID)
	require.ErrorIs(t, err, sessionstore.ErrNotFound)

	sessions, err = svc.ListTaskSessions(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}
