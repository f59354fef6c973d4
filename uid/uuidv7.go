package uid

import (
	"context"

	"github.com/google/uuid"
)

type UUIDV7 struct{}

func NewUUIDV7() *UUIDV7 {
	return &UUIDV7{}
}

func (u *UUIDV7) New(_ context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
