package validation_test

import (
	"errors"
	"testing"

	"github.com/christmas-fire/squadup/internal/validation"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=72"`
}

func TestFirstField(t *testing.T) {
	req := require.New(t)

	err := validation.Struct(signup{Email: "not an email", Password: "short"})
	req.Error(err)
	fe, ok := validation.FirstField(err)
	req.True(ok)
	req.Equal("Name", fe.Field())
	req.Equal("required", fe.Tag())

	err = validation.Struct(signup{Name: "A", Email: "not an email", Password: "password1"})
	fe, ok = validation.FirstField(err)
	req.True(ok)
	req.Equal("Email", fe.Field())
	req.Equal("email", fe.Tag())

	req.NoError(validation.Struct(signup{Name: "A", Email: "a@x.io", Password: "password1"}))

	_, ok = validation.FirstField(errors.New("boom"))
	req.False(ok)
}
