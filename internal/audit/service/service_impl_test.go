package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	"github.com/leadgate/leadgate/internal/audit/repository"
	obscontext "github.com/leadgate/leadgate/internal/observability/context"
	"github.com/leadgate/leadgate/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*gorm.DB, auditdomain.Service) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return db, svc
}

func TestAuditLogResolvesActorFromContextAndMasksReferences(t *testing.T) {
	db, svc := setupService(t)

	ctx := obscontext.WithActor(context.Background(), "user", "42")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	target := "1001"
	err := svc.AuditLog(ctx, nil, "", nil, "credit.top_up", "credit_transaction", &target, map[string]any{
		"amount":            5000,
		"payment_reference": "pi_abcdefgh1234",
	})
	require.NoError(t, err)

	var entry auditdomain.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "42", *entry.ActorID)
	assert.Equal(t, "pi_****1234", entry.Metadata["payment_reference"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	db, svc := setupService(t)

	require.NoError(t, svc.AuditLog(context.Background(), db, "", nil, "invoice.reconcile", "", nil, nil))

	var entry auditdomain.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "system", entry.ActorType)
	assert.Equal(t, "unknown", entry.TargetType)
	assert.Nil(t, entry.ActorID)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	_, svc := setupService(t)
	err := svc.AuditLog(context.Background(), nil, "user", nil, " ", "lead", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPagesByCursor(t *testing.T) {
	_, svc := setupService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, nil, "system", nil, "lead.lock_conflict", "lead", nil, nil))
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		Action:     "lead.lock_conflict",
	})
	require.NoError(t, err)
	assert.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
		Action:     "lead.lock_conflict",
	})
	require.NoError(t, err)
	assert.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
}
