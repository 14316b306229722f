package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const pgUniqueViolation = "23505"

type teamRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"uniqueIndex;not null"`
	CompanyName string    `gorm:"not null"`
	Score       int       `gorm:"not null;default:0;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (teamRow) TableName() string { return "teams" }

func (r *teamRow) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r teamRow) team() types.Team {
	return types.Team{
		ID:          r.ID.String(),
		Name:        r.Name,
		CompanyName: r.CompanyName,
		Score:       r.Score,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Postgres keeps teams in a single "teams" table through gorm.
type Postgres struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPostgres opens the database and migrates the teams table.
func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	p := &Postgres{db: db, logger: logger}
	if err := p.Migrate(ctx); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	logger.Info("connected to postgres")
	return p, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.WithContext(ctx).AutoMigrate(&teamRow{}); err != nil {
		return fmt.Errorf("failed to migrate teams table: %w", err)
	}
	return nil
}

func (p *Postgres) Find(ctx context.Context) ([]types.Team, error) {
	var rows []teamRow
	err := p.db.WithContext(ctx).
		Order("score DESC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find teams: %w", err)
	}
	teams := make([]types.Team, 0, len(rows))
	for _, r := range rows {
		teams = append(teams, r.team())
	}
	return teams, nil
}

func (p *Postgres) FindByName(ctx context.Context, name string) (types.Team, error) {
	var row teamRow
	if err := p.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return types.Team{}, translate("find team", err)
	}
	return row.team(), nil
}

func (p *Postgres) FindByID(ctx context.Context, id string) (types.Team, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return types.Team{}, leaderboard.ErrNotFound
	}
	var row teamRow
	if err := p.db.WithContext(ctx).First(&row, "id = ?", uid).Error; err != nil {
		return types.Team{}, translate("find team", err)
	}
	return row.team(), nil
}

func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.WithContext(ctx).Model(&teamRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count teams: %w", err)
	}
	return n, nil
}

func (p *Postgres) InsertMany(ctx context.Context, teams []types.Team) ([]types.Team, error) {
	if len(teams) == 0 {
		return []types.Team{}, nil
	}
	// ids are random, so created_at alone has to carry batch order
	now := time.Now().UTC().Truncate(time.Microsecond)
	rows := make([]teamRow, 0, len(teams))
	for i, t := range teams {
		at := now.Add(time.Duration(i) * time.Microsecond)
		rows = append(rows, teamRow{Name: t.Name, CompanyName: t.CompanyName, Score: t.Score, CreatedAt: at, UpdatedAt: at})
	}
	if err := p.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, translate("insert teams", err)
	}
	created := make([]types.Team, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.team())
	}
	return created, nil
}

// IncrementScore adds delta in SQL so concurrent increments never lose
// an update.
func (p *Postgres) IncrementScore(ctx context.Context, name string, delta int) (types.Team, error) {
	var row teamRow
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&teamRow{}).
			Where("name = ?", name).
			Updates(map[string]any{
				"score":      gorm.Expr("score + ?", delta),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("name = ?", name).First(&row).Error
	})
	if err != nil {
		return types.Team{}, translate("increment score", err)
	}
	return row.team(), nil
}

func (p *Postgres) Save(ctx context.Context, t types.Team) (types.Team, error) {
	uid, err := uuid.Parse(t.ID)
	if err != nil {
		return types.Team{}, leaderboard.ErrNotFound
	}
	var row teamRow
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&teamRow{}).
			Where("id = ?", uid).
			Updates(map[string]any{
				"name":         t.Name,
				"company_name": t.CompanyName,
				"score":        t.Score,
				"updated_at":   time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&row, "id = ?", uid).Error
	})
	if err != nil {
		return types.Team{}, translate("save team", err)
	}
	return row.team(), nil
}

func (p *Postgres) ResetScores(ctx context.Context) error {
	err := p.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Model(&teamRow{}).
		Updates(map[string]any{"score": 0, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("failed to reset scores: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteByID(ctx context.Context, id string) (types.Team, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return types.Team{}, leaderboard.ErrNotFound
	}
	var row teamRow
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "id = ?", uid).Error; err != nil {
			return err
		}
		return tx.Delete(&teamRow{}, "id = ?", uid).Error
	})
	if err != nil {
		return types.Team{}, translate("delete team", err)
	}
	return row.team(), nil
}

func (p *Postgres) Close(context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	p.logger.Info("closing postgres connection")
	return sqlDB.Close()
}

func translate(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return leaderboard.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("failed to %s: %w", op, leaderboard.ErrDuplicateName)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
