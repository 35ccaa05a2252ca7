package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/gatelink/domain"
	"github.com/leadgate/leadgate/internal/gatelink/password"
	"github.com/leadgate/leadgate/internal/gatelink/token"
	"github.com/leadgate/leadgate/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const loginBucketPrefix = "leadgate:login:"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       domain.Repository
	BrokerRepo brokerdomain.Repository
	Bucket     *ratelimit.TokenBucket `optional:"true"`
	AuditSvc   auditdomain.Service    `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	auth       config.AuthConfig
	issuer     *token.Issuer
	repo       domain.Repository
	brokerRepo brokerdomain.Repository
	bucket     *ratelimit.TokenBucket
	auditSvc   auditdomain.Service
}

func New(p Params) domain.Service {
	log := p.Log.Named("gatelink.service")
	issuer, err := token.NewIssuer(p.Config.Auth.JWTSecret, p.Config.Auth.AccessTokenTTL, p.Clock.Now)
	if err != nil {
		log.Warn("access tokens disabled", zap.Error(err))
	}
	if p.Bucket == nil {
		log.Info("login rate limiting disabled, redis not configured")
	}
	return &Service{
		db:         p.DB,
		log:        log,
		genID:      p.GenID,
		clock:      p.Clock,
		auth:       p.Config.Auth,
		issuer:     issuer,
		repo:       p.Repo,
		brokerRepo: p.BrokerRepo,
		bucket:     p.Bucket,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (domain.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return domain.User{}, domain.ErrInvalidUsername
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, domain.ErrInvalidEmail
	}
	role := domain.RoleTelephonist
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := domain.ParseRole(req.Role)
		if err != nil {
			return domain.User{}, err
		}
		role = parsed
	}
	hash, err := password.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			return domain.User{}, domain.ErrWeakPassword
		}
		return domain.User{}, err
	}

	user := domain.User{
		ID:           s.genID.Generate(),
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    s.clock.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.Exists(ctx, tx, username, email)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrUserExists
		}
		if err := s.repo.Insert(ctx, tx, &user); err != nil {
			return err
		}
		return s.audit(ctx, tx, nil, "user.create", "user", user.ID.String(), map[string]any{
			"username": user.Username,
			"role":     string(user.Role),
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Service) SetBrokerPassword(ctx context.Context, brokerID snowflake.ID, plain string) error {
	if brokerID == 0 {
		return domain.ErrBrokerNotFound
	}
	hash, err := password.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			return domain.ErrWeakPassword
		}
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		broker, err := s.brokerRepo.FindByIDForUpdate(ctx, tx, brokerID)
		if err != nil {
			return err
		}
		if broker == nil {
			return domain.ErrBrokerNotFound
		}
		if err := s.brokerRepo.UpdatePasswordHash(ctx, tx, broker.ID, hash); err != nil {
			return err
		}
		return s.audit(ctx, tx, nil, "broker.gatelink_password", "broker", broker.ID.String(), nil)
	})
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResult, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		return domain.LoginResult{}, domain.ErrInvalidCredentials
	}
	if err := s.throttle(ctx, login); err != nil {
		return domain.LoginResult{}, err
	}
	if s.issuer == nil {
		return domain.LoginResult{}, domain.ErrNotConfigured
	}

	principal, err := s.authenticatePassword(ctx, login, req.Password)
	if err != nil {
		return domain.LoginResult{}, err
	}

	claims := token.Claims{Kind: string(principal.Kind())}
	switch p := principal.(type) {
	case domain.UserPrincipal:
		claims.Role = string(p.Role)
		claims.Username = p.Username
	case domain.BrokerPrincipal:
		claims.Email = p.Email
	}
	raw, expiresAt, err := s.issuer.Issue(principal.ActorID(), claims)
	if err != nil {
		return domain.LoginResult{}, err
	}

	if err := s.audit(ctx, s.db, principal, "gatelink.login", string(principal.Kind()), principal.ActorID(), nil); err != nil {
		s.log.Warn("login audit failed", zap.Error(err))
	}
	return domain.LoginResult{
		AccessToken: raw,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		Principal:   principal,
	}, nil
}

func (s *Service) Authenticate(ctx context.Context, raw string) (domain.Principal, error) {
	if s.issuer == nil {
		return nil, domain.ErrNotConfigured
	}
	claims, err := s.issuer.Verify(strings.TrimSpace(raw))
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	id, err := snowflake.ParseString(claims.Subject)
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidToken
	}

	switch domain.PrincipalKind(claims.Kind) {
	case domain.KindUser:
		user, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if user == nil || !user.Role.Valid() {
			return nil, domain.ErrInvalidToken
		}
		return user.Principal(), nil
	case domain.KindBroker:
		broker, err := s.brokerRepo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if broker == nil {
			return nil, domain.ErrInvalidToken
		}
		return domain.BrokerPrincipal{BrokerID: broker.ID, Email: broker.Email}, nil
	default:
		return nil, domain.ErrInvalidToken
	}
}

func (s *Service) authenticatePassword(ctx context.Context, login, plain string) (domain.Principal, error) {
	user, err := s.repo.FindByLogin(ctx, s.db, login)
	if err != nil {
		return nil, err
	}
	if user != nil && password.Verify(plain, user.PasswordHash) {
		if !user.Role.Valid() {
			s.log.Warn("user has a non-canonical role, run rolefix",
				zap.String("user_id", user.ID.String()),
				zap.String("role", string(user.Role)),
			)
			return nil, domain.ErrInvalidCredentials
		}
		return user.Principal(), nil
	}

	broker, err := s.brokerRepo.FindByEmail(ctx, s.db, login)
	if err != nil {
		return nil, err
	}
	if broker != nil && broker.GatelinkPasswordHash != nil && password.Verify(plain, *broker.GatelinkPasswordHash) {
		return domain.BrokerPrincipal{BrokerID: broker.ID, Email: broker.Email}, nil
	}
	return nil, domain.ErrInvalidCredentials
}

// throttle takes one token from the per-login bucket. Redis errors let the
// attempt through.
func (s *Service) throttle(ctx context.Context, login string) error {
	if s.bucket == nil || s.auth.LoginRatePerMin <= 0 || s.auth.LoginBurst <= 0 {
		return nil
	}
	res, err := s.bucket.Allow(ctx, loginBucketPrefix+strings.ToLower(login), s.auth.LoginRatePerMin/60, s.auth.LoginBurst)
	if err != nil {
		s.log.Warn("login rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !res.Allowed {
		s.log.Info("login rate limited", zap.Duration("retry_after", res.RetryAfter))
		return domain.ErrRateLimited
	}
	return nil
}

func (s *Service) audit(ctx context.Context, db *gorm.DB, actor domain.Principal, action, targetType, targetID string, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	var (
		actorType string
		actorID   *string
	)
	if actor != nil {
		id := actor.ActorID()
		actorID = &id
		actorType = string(auditdomain.ActorTypeUser)
		if actor.Kind() == domain.KindBroker {
			actorType = string(auditdomain.ActorTypeBroker)
		}
	}
	return s.auditSvc.AuditLog(ctx, db, actorType, actorID, action, targetType, &targetID, metadata)
}
