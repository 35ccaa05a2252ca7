package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	auditrepository "github.com/leadgate/leadgate/internal/audit/repository"
	auditservice "github.com/leadgate/leadgate/internal/audit/service"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	brokerrepository "github.com/leadgate/leadgate/internal/broker/repository"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/gatelink/domain"
	"github.com/leadgate/leadgate/internal/gatelink/repository"
	"github.com/leadgate/leadgate/internal/pricing"
	"github.com/leadgate/leadgate/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	clock *clock.FakeClock
	node  *snowflake.Node
}

func setup(t *testing.T, secret string) *fixture {
	t.Helper()
	db := dbtest.Open(t, &domain.User{}, &brokerdomain.Broker{}, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	fake := clock.NewFakeClock(time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Config: config.Config{Auth: config.AuthConfig{
			JWTSecret:       secret,
			AccessTokenTTL:  time.Hour,
			LoginRatePerMin: 5,
			LoginBurst:      5,
		}},
		Repo:       repository.Provide(),
		BrokerRepo: brokerrepository.Provide(),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    db,
			Log:   log,
			GenID: node,
			Repo:  auditrepository.Provide(),
		}),
	})
	return &fixture{db: db, svc: svc, clock: fake, node: node}
}

func (f *fixture) broker(t *testing.T) brokerdomain.Broker {
	t.Helper()
	b := brokerdomain.Broker{
		ID:            f.node.Generate(),
		CompanyName:   "Alster Immobilien",
		Email:         "Portal@Alster.example",
		BillingCode:   "alster",
		ContractStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		BillingMode:   pricing.ModeLegacy,
		StandardRate:  10000,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(t, brokerrepository.Provide().Insert(context.Background(), f.db, &b))
	return b
}

func TestCreateUserValidates(t *testing.T) {
	f := setup(t, "test-secret")
	ctx := context.Background()

	user, err := f.svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "mia",
		Email:    "Mia@Leadgate.example",
		Password: "sicheres-passwort",
		Role:     "Manager",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, user.Role)
	assert.Equal(t, "mia@leadgate.example", user.Email)
	assert.NotEqual(t, "sicheres-passwort", user.PasswordHash)

	_, err = f.svc.CreateUser(ctx, domain.CreateUserRequest{Username: "MIA", Email: "x@y.example", Password: "sicheres-passwort"})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	_, err = f.svc.CreateUser(ctx, domain.CreateUserRequest{Username: "tom", Email: "tom@y.example", Password: "kurz"})
	assert.ErrorIs(t, err, domain.ErrWeakPassword)

	_, err = f.svc.CreateUser(ctx, domain.CreateUserRequest{Username: "tom", Email: "tom@y.example", Password: "sicheres-passwort", Role: "Telefonist"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	def, err := f.svc.CreateUser(ctx, domain.CreateUserRequest{Username: "tom", Email: "tom@y.example", Password: "sicheres-passwort"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTelephonist, def.Role)
}

func TestUserLoginRoundTrip(t *testing.T) {
	f := setup(t, "test-secret")
	ctx := context.Background()
	user, err := f.svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "mia", Email: "mia@leadgate.example", Password: "sicheres-passwort", Role: "accountant",
	})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, domain.LoginRequest{Login: "mia", Password: "falsch-falsch"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	res, err := f.svc.Login(ctx, domain.LoginRequest{Login: "MIA@leadgate.example", Password: "sicheres-passwort"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)
	assert.Equal(t, f.clock.Now().Add(time.Hour), res.ExpiresAt)

	principal, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	up, ok := principal.(domain.UserPrincipal)
	require.True(t, ok)
	assert.Equal(t, user.ID, up.UserID)
	assert.Equal(t, domain.RoleAccountant, up.Role)

	f.clock.Advance(61 * time.Minute)
	_, err = f.svc.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	var logins int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "gatelink.login").Count(&logins).Error)
	assert.Equal(t, int64(1), logins)
}

func TestBrokerLogin(t *testing.T) {
	f := setup(t, "test-secret")
	ctx := context.Background()
	broker := f.broker(t)

	_, err := f.svc.Login(ctx, domain.LoginRequest{Login: "portal@alster.example", Password: "portal-passwort"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	require.NoError(t, f.svc.SetBrokerPassword(ctx, broker.ID, "portal-passwort"))
	assert.ErrorIs(t, f.svc.SetBrokerPassword(ctx, f.node.Generate(), "portal-passwort"), domain.ErrBrokerNotFound)

	res, err := f.svc.Login(ctx, domain.LoginRequest{Login: "portal@alster.example", Password: "portal-passwort"})
	require.NoError(t, err)
	bp, ok := res.Principal.(domain.BrokerPrincipal)
	require.True(t, ok)
	assert.Equal(t, broker.ID, bp.BrokerID)

	principal, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.KindBroker, principal.Kind())

	require.NoError(t, brokerrepository.Provide().Delete(ctx, f.db, broker.ID))
	_, err = f.svc.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestLegacyRoleCannotLogIn(t *testing.T) {
	f := setup(t, "test-secret")
	ctx := context.Background()
	user, err := f.svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "alt", Email: "alt@leadgate.example", Password: "sicheres-passwort",
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`UPDATE users SET role = ? WHERE id = ?`, "Telefonist", user.ID).Error)

	_, err = f.svc.Login(ctx, domain.LoginRequest{Login: "alt", Password: "sicheres-passwort"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestTokensDisabledWithoutSecret(t *testing.T) {
	f := setup(t, "")
	ctx := context.Background()
	_, err := f.svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "mia", Email: "mia@leadgate.example", Password: "sicheres-passwort",
	})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, domain.LoginRequest{Login: "mia", Password: "sicheres-passwort"})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	_, err = f.svc.Authenticate(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}
