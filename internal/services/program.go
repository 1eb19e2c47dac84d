package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/repository"
	"github.com/bountyboard/bounty-server/internal/reward"
)

// ProgramService manages company bounty programs
type ProgramService struct {
	store  repository.Programs
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewProgramService creates a new program service
func NewProgramService(store repository.Programs, logger *zap.SugaredLogger) *ProgramService {
	return &ProgramService{store: store, logger: logger, now: time.Now}
}

// Create registers a program owned by the acting company
func (s *ProgramService) Create(ctx context.Context, actor models.Actor, in *models.ProgramInput) (*models.Program, error) {
	if actor.Role != models.RoleCompany {
		return nil, fmt.Errorf("only companies create programs: %w", models.ErrForbidden)
	}
	bounds, err := s.checkInput(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &models.Program{
		ID:        uuid.New(),
		CompanyID: actor.ID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(p, in, bounds)

	if err := s.store.CreateProgram(ctx, p); err != nil {
		return nil, err
	}
	if len(bounds.Unparsed) > 0 {
		s.logger.Warnw("Reward structure partly unparsable", "program_id", p.ID, "severities", bounds.Unparsed)
	}
	s.logger.Infow("Program created", "program_id", p.ID, "company_id", actor.ID)
	return p, nil
}

// Get returns one program
func (s *ProgramService) Get(ctx context.Context, id uuid.UUID) (*models.Program, error) {
	return s.store.GetProgram(ctx, id)
}

// List returns programs matching the filter
func (s *ProgramService) List(ctx context.Context, f models.ProgramFilter) ([]models.Program, error) {
	return s.store.ListPrograms(ctx, f)
}

// Update replaces a program's descriptive fields and recomputes its bounty range
func (s *ProgramService) Update(ctx context.Context, actor models.Actor, id uuid.UUID, in *models.ProgramInput) (*models.Program, error) {
	p, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	bounds, err := s.checkInput(in)
	if err != nil {
		return nil, err
	}

	apply(p, in, bounds)
	p.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateProgram(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a program the acting company owns
func (s *ProgramService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteProgram(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("Program deleted", "program_id", id)
	return nil
}

// ComputeBounty derives the bounty range of a reward structure without storing anything
func (s *ProgramService) ComputeBounty(structure map[models.Severity]string) (models.BountyRange, error) {
	if err := checkSeverities(structure); err != nil {
		return models.BountyRange{}, err
	}
	return reward.ComputeBounty(structure).Range(), nil
}

func (s *ProgramService) owned(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Program, error) {
	if actor.Role != models.RoleCompany {
		return nil, fmt.Errorf("only companies manage programs: %w", models.ErrForbidden)
	}
	p, err := s.store.GetProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.CompanyID != actor.ID {
		return nil, fmt.Errorf("program %s belongs to another company: %w", id, models.ErrForbidden)
	}
	return p, nil
}

func (s *ProgramService) checkInput(in *models.ProgramInput) (reward.Bounds, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Industry = strings.TrimSpace(in.Industry)
	if err := validateStruct(in); err != nil {
		return reward.Bounds{}, err
	}
	if err := checkSeverities(in.RewardStructure); err != nil {
		return reward.Bounds{}, err
	}
	return reward.ComputeBounty(in.RewardStructure), nil
}

func checkSeverities(structure map[models.Severity]string) error {
	for sev := range structure {
		if !sev.Valid() {
			return fmt.Errorf("unknown severity %q in reward structure: %w", sev, models.ErrValidation)
		}
	}
	return nil
}

func apply(p *models.Program, in *models.ProgramInput, bounds reward.Bounds) {
	p.Name = in.Name
	p.Industry = in.Industry
	p.Description = in.Description
	p.Scope = in.Scope
	p.OutOfScope = in.OutOfScope
	p.Rules = in.Rules
	p.RewardStructure = in.RewardStructure
	if p.RewardStructure == nil {
		p.RewardStructure = map[models.Severity]string{}
	}
	p.MinBounty = bounds.MinBounty
	p.MaxBounty = bounds.MaxBounty
	p.UnparsedSeverities = bounds.Unparsed
	if in.Active != nil {
		p.Active = *in.Active
	}
}
