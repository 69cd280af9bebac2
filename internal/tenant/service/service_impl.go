package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/fluxhq/flux/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) tenantdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req tenantdomain.CreateProjectRequest) (*tenantdomain.Project, error) {
	platformID := strings.TrimSpace(req.PlatformProjectID)
	if platformID == "" {
		return nil, tenantdomain.ErrInvalidPlatformID
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Project " + platformID
	}

	environment := strings.TrimSpace(req.Environment)
	if environment == "" {
		environment = "production"
	}

	retention := req.RetentionDays
	if retention <= 0 {
		retention = tenantdomain.DefaultRetentionDays
	}

	now := time.Now().UTC()
	project := &tenantdomain.Project{
		ID:                s.genID.Generate(),
		PlatformProjectID: platformID,
		Name:              name,
		Environment:       environment,
		IngestKey:         generateIngestKey(),
		RetentionDays:     retention,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		return nil, err
	}
	return project, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*tenantdomain.Project, error) {
	var project tenantdomain.Project
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenantdomain.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (s *Service) FindByIngestKey(ctx context.Context, key string) (*tenantdomain.Project, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, tenantdomain.ErrNotFound
	}
	var project tenantdomain.Project
	err := s.db.WithContext(ctx).Where("ingest_key = ?", key).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenantdomain.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (s *Service) List(ctx context.Context) ([]tenantdomain.Project, error) {
	var projects []tenantdomain.Project
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *Service) IncrementEventsCount(ctx context.Context, id snowflake.ID, by int64) error {
	return s.incrementCounter(ctx, id, "events_count", by)
}

func (s *Service) IncrementMetricsCount(ctx context.Context, id snowflake.ID, by int64) error {
	return s.incrementCounter(ctx, id, "metrics_count", by)
}

func (s *Service) incrementCounter(ctx context.Context, id snowflake.ID, column string, by int64) error {
	if by <= 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&tenantdomain.Project{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", by)).Error
}

func generateIngestKey() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "flx_ingest_" + hex.EncodeToString(buf)
}
