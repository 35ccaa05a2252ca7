// Command rolefix rewrites legacy free-text user roles into the closed role
// set. Run it once before staff with old roles try to log in.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/leadgate/leadgate/internal/config"
	gatelinkdomain "github.com/leadgate/leadgate/internal/gatelink/domain"
	gatelinkrepository "github.com/leadgate/leadgate/internal/gatelink/repository"
	"github.com/leadgate/leadgate/internal/observability"
	"github.com/leadgate/leadgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type report struct {
	Scanned   int
	Updated   int
	Defaulted int
}

func main() {
	dryRun := flag.Bool("dry-run", false, "log the changes without writing them")
	flag.Parse()

	exitCode := 0
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		fx.Provide(gatelinkrepository.Provide),
		fx.NopLogger,
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, conn *gorm.DB, repo gatelinkdomain.Repository, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					rep, err := normalizeRoles(ctx, conn, repo, log.Named("rolefix"), *dryRun)
					if err != nil {
						log.Error("role migration failed", zap.Error(err))
						exitCode = 1
					} else {
						log.Info("role migration finished",
							zap.Bool("dry_run", *dryRun),
							zap.Int("scanned", rep.Scanned),
							zap.Int("updated", rep.Updated),
							zap.Int("defaulted", rep.Defaulted),
						)
					}
					return shutdowner.Shutdown()
				},
			})
		}),
	)
	app.Run()
	os.Exit(exitCode)
}

// normalizeRoles maps every stored role onto the closed set in one
// transaction. Unknown values fall back to telephonist, the least privileged
// staff role.
func normalizeRoles(ctx context.Context, conn *gorm.DB, repo gatelinkdomain.Repository, log *zap.Logger, dryRun bool) (report, error) {
	var rep report
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := repo.ListRoles(ctx, tx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			rep.Scanned++
			role, known := gatelinkdomain.NormalizeRole(row.Role)
			if string(role) == row.Role {
				continue
			}
			fields := []zap.Field{
				zap.String("user_id", row.ID.String()),
				zap.String("username", row.Username),
				zap.String("from", row.Role),
				zap.String("to", string(role)),
			}
			if !known {
				rep.Defaulted++
				log.Warn("unknown role, defaulting", fields...)
			} else {
				log.Info("normalizing role", fields...)
			}
			rep.Updated++
			if dryRun {
				continue
			}
			if err := repo.UpdateRole(ctx, tx, row.ID, role); err != nil {
				return err
			}
		}
		return nil
	})
	return rep, err
}
