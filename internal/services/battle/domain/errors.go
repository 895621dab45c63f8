package domain

import (
	apperrors "github.com/louisbranch/conquest.space/internal/platform/errors"
)

// BattleNotFound reports a missing battle.
func BattleNotFound(battleID string) error {
	return apperrors.WithMetadata(apperrors.CodeBattleNotFound, "battle "+battleID+" not found",
		map[string]string{"BattleID": battleID})
}

// AlreadyResolved reports a strike against a terminal battle.
func AlreadyResolved(battleID string, status Status) error {
	return apperrors.WithMetadata(apperrors.CodeBattleAlreadyResolved, "battle "+battleID+" is "+string(status),
		map[string]string{"BattleID": battleID, "Status": string(status)})
}

// RegionNotFound reports a missing region.
func RegionNotFound(regionKey string) error {
	return apperrors.WithMetadata(apperrors.CodeRegionNotFound, "region "+regionKey+" not found",
		map[string]string{"RegionKey": regionKey})
}

// ActiveBattleExists reports a second active battle for one region.
func ActiveBattleExists(regionKey string) error {
	return apperrors.WithMetadata(apperrors.CodeBattleConflict, "region "+regionKey+" already has an active battle",
		map[string]string{"RegionKey": regionKey})
}

func invalidInput(field string, message string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidInput, message, map[string]string{"Field": field})
}

// InvalidInput reports a rejected request field.
func InvalidInput(field string, message string) error {
	return invalidInput(field, message)
}
