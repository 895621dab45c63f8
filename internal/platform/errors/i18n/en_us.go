package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
var enUSMessages = map[Code]string{
	"UNKNOWN":                 "Something went wrong. Please try again.",
	"BATTLE_NOT_FOUND":        "Battle {{.BattleID}} was not found.",
	"BATTLE_ALREADY_RESOLVED": "Battle {{.BattleID}} is already over.",
	"BATTLE_CONFLICT":         "Region {{.RegionKey}} already has an active battle.",
	"REGION_NOT_FOUND":        "Region {{.RegionKey}} was not found.",
	"USER_NOT_FOUND":          "User {{.UserID}} was not found.",
	"UNAUTHORIZED":            "Authentication is required.",
	"FORBIDDEN":               "You are not allowed to do that.",
	"INVALID_INPUT":           "Invalid {{.Field}}.",
	"NOT_FOUND":               "Not found.",
}
