package main

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"joddb/internal/metrics"
	"joddb/internal/notify"
	"joddb/internal/testutil"
	"joddb/internal/workflow"
)

// setupHandlerTest swaps the package globals for an in-memory database and a
// fresh engine, restoring them when the test finishes.
func setupHandlerTest(t *testing.T) *sql.DB {
	t.Helper()
	oldDB, oldEngine, oldNotifier, oldThresholds := db, engine, notifier, thresholds
	db = testutil.SetupTestDB(t)
	notifier = &notify.Service{DB: db}
	engine = &workflow.Engine{DB: db, Notifier: notifier, Now: time.Now}
	thresholds = metrics.DefaultThresholds()
	t.Cleanup(func() {
		db, engine, notifier, thresholds = oldDB, oldEngine, oldNotifier, oldThresholds
	})
	return db
}

// withUserID injects an authenticated user ID the way requireAuth does.
func withUserID(r *http.Request, userID int) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ctxUserID, userID))
}

func withRole(r *http.Request, userID int, role string) *http.Request {
	ctx := context.WithValue(r.Context(), ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return r.WithContext(ctx)
}
