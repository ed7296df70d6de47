package battle

import (
	"errors"
	"fmt"

	"github.com/codebattle/codebattle/internal/apperr"
	"github.com/codebattle/codebattle/internal/database"
	"github.com/codebattle/codebattle/internal/database/models"

	"gorm.io/gorm"
)

// battleByID fetches a battle or reports NotFound.
func (s *Service) battleByID(battleID string) (*models.Battle, error) {
	battle, err := database.GetBattle(s.db, battleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: battle not found", apperr.ErrNotFound)
		}
		return nil, err
	}
	return battle, nil
}

// battleWithAccess requires the user to be the creator or a participant.
func (s *Service) battleWithAccess(battleID, userID string) (*models.Battle, error) {
	battle, err := s.battleByID(battleID)
	if err != nil {
		return nil, err
	}
	if battle.CreatedBy == userID {
		return battle, nil
	}

	isParticipant, err := database.IsParticipant(s.db, battleID, userID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, fmt.Errorf("%w: you are not allowed to view this battle", apperr.ErrPermissionDenied)
	}
	return battle, nil
}

// battleAsCreator requires the user to be the creator.
func (s *Service) battleAsCreator(battleID, userID string) (*models.Battle, error) {
	battle, err := s.battleByID(battleID)
	if err != nil {
		return nil, err
	}
	if battle.CreatedBy != userID {
		return nil, fmt.Errorf("%w: only the battle creator can perform this action", apperr.ErrPermissionDenied)
	}
	return battle, nil
}
