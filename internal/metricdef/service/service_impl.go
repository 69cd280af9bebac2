package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fluxhq/flux/internal/cache"
	"github.com/fluxhq/flux/internal/metricdef/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Cache cache.DefinitionCache
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	cache cache.DefinitionCache
}

func New(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("metricdef.service"),
		genID: p.GenID,
		cache: p.Cache,
	}
}

func (s *service) Ensure(ctx context.Context, req domain.EnsureRequest) (*domain.MetricDefinition, error) {
	if req.ProjectID == 0 {
		return nil, domain.ErrTenantRequired
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	metricType := req.MetricType
	if metricType == "" {
		metricType = domain.TypeGauge
	}
	if !domain.ValidType(metricType) {
		return nil, domain.ErrInvalidType
	}

	if def, ok := s.cache.Get(req.ProjectID.String(), name); ok {
		return def, nil
	}

	def := domain.MetricDefinition{
		ID:          s.genID.Generate(),
		ProjectID:   req.ProjectID,
		Name:        name,
		MetricType:  metricType,
		Unit:        req.Unit,
		DisplayName: req.DisplayName,
		Description: req.Description,
	}
	// First writer wins; concurrent ingesters for the same name fall through
	// to the lookup below.
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(&def).Error
	if err != nil {
		return nil, err
	}

	var stored domain.MetricDefinition
	err = s.db.WithContext(ctx).
		Where("project_id = ? AND name = ?", req.ProjectID, name).
		First(&stored).Error
	if err != nil {
		return nil, err
	}

	s.cache.Set(req.ProjectID.String(), name, &stored)
	return &stored, nil
}

func (s *service) GetByName(ctx context.Context, projectID snowflake.ID, name string) (*domain.MetricDefinition, error) {
	if def, ok := s.cache.Get(projectID.String(), name); ok {
		return def, nil
	}

	var def domain.MetricDefinition
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND name = ?", projectID, name).
		First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.cache.Set(projectID.String(), name, &def)
	return &def, nil
}

func (s *service) List(ctx context.Context, projectID snowflake.ID) ([]domain.MetricDefinition, error) {
	var defs []domain.MetricDefinition
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("name ASC").
		Find(&defs).Error
	if err != nil {
		return nil, err
	}
	return defs, nil
}
