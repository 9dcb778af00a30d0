package usecase

import "github.com/google/uuid"

func mustRandomUUID() uuid.UUID {
	return uuid.New()
}
