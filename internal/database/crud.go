package database

import (
	"github.com/codebattle/codebattle/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// User CRUD
func CreateUser(db *gorm.DB, user *models.User) error {
	return db.Create(user).Error
}

func GetUserByID(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByUsername(db *gorm.DB, username string) (*models.User, error) {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByOIDCSub(db *gorm.DB, sub string) (*models.User, error) {
	var user models.User
	if err := db.Where("oidc_sub = ?", sub).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func UpdateUser(db *gorm.DB, user *models.User) error {
	return db.Save(user).Error
}

// Battle CRUD
func CreateBattle(db *gorm.DB, battle *models.Battle) error {
	return db.Create(battle).Error
}

func GetBattle(db *gorm.DB, id string) (*models.Battle, error) {
	var battle models.Battle
	if err := db.Where("id = ?", id).First(&battle).Error; err != nil {
		return nil, err
	}
	return &battle, nil
}

func GetBattleByJoinToken(db *gorm.DB, token string) (*models.Battle, error) {
	var battle models.Battle
	if err := db.Where("join_token = ?", token).First(&battle).Error; err != nil {
		return nil, err
	}
	return &battle, nil
}

func GetBattlesByParticipant(db *gorm.DB, userID string) ([]models.Battle, error) {
	var battles []models.Battle
	err := db.
		Joins("join participants on participants.battle_id = battles.id").
		Where("participants.user_id = ?", userID).
		Order("battles.start_time desc").
		Find(&battles).Error
	if err != nil {
		return nil, err
	}
	return battles, nil
}

func GetBattlesByStatus(db *gorm.DB, status models.BattleStatus) ([]models.Battle, error) {
	var battles []models.Battle
	if err := db.Where("status = ?", status).Find(&battles).Error; err != nil {
		return nil, err
	}
	return battles, nil
}

// UpdateBattleStatusCAS flips a battle's status only if it still has the
// expected prior status. Returns true when this call won the transition, so
// a racing scheduler-fired job and a manual trigger serialize at the row.
func UpdateBattleStatusCAS(db *gorm.DB, id string, from, to models.BattleStatus) (bool, error) {
	result := db.Model(&models.Battle{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteBattle removes a battle and everything hanging off it.
func DeleteBattle(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Submission{}, "battle_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Problem{}, "battle_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Participant{}, "battle_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Battle{}, "id = ?", id).Error
	})
}

// Participant CRUD
func AddParticipant(db *gorm.DB, p *models.Participant) error {
	return db.Create(p).Error
}

func GetParticipants(db *gorm.DB, battleID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := db.Preload("User").
		Where("battle_id = ?", battleID).
		Order("created_at asc").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func IsParticipant(db *gorm.DB, battleID, userID string) (bool, error) {
	var count int64
	err := db.Model(&models.Participant{}).
		Where("battle_id = ? AND user_id = ?", battleID, userID).
		Count(&count).Error
	return count > 0, err
}

// Problem CRUD
func CreateProblems(db *gorm.DB, problems []models.Problem) error {
	return db.Create(&problems).Error
}

func GetProblems(db *gorm.DB, battleID string) ([]models.Problem, error) {
	var problems []models.Problem
	err := db.Where("battle_id = ?", battleID).
		Order("position asc").
		Find(&problems).Error
	if err != nil {
		return nil, err
	}
	return problems, nil
}

// Submission CRUD

// CreateSubmissions inserts a batch inside one transaction. Rows whose
// (battle_id, cf_id) pair is already stored are skipped, so two overlapping
// poll ticks ingesting the same submission stay harmless.
func CreateSubmissions(db *gorm.DB, subs []models.Submission) error {
	if len(subs) == 0 {
		return nil
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&subs).Error
	})
}

func GetSubmissions(db *gorm.DB, battleID string) ([]models.Submission, error) {
	var subs []models.Submission
	err := db.Where("battle_id = ?", battleID).
		Order("submitted_at asc").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func GetStoredSubmissionIDs(db *gorm.DB, battleID string) (map[int64]bool, error) {
	var ids []int64
	err := db.Model(&models.Submission{}).
		Where("battle_id = ?", battleID).
		Pluck("cf_id", &ids).Error
	if err != nil {
		return nil, err
	}
	stored := make(map[int64]bool, len(ids))
	for _, id := range ids {
		stored[id] = true
	}
	return stored, nil
}
