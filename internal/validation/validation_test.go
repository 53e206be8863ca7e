package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/auth"
)

type signUpInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"max=10"`
}

type projectInput struct {
	Slug string `json:"slug" validate:"required,slug"`
	Role string `json:"role,omitempty" validate:"omitempty,role"`
}

func TestStruct_Valid(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(signUpInput{Email: "ada@example.com", Password: "longenough"}))
	assert.NoError(t, v.Struct(projectInput{Slug: "my-first-project", Role: "admin"}))
}

func TestStruct_FieldErrorsUseJSONNames(t *testing.T) {
	v := New()
	err := v.Struct(signUpInput{Email: "nope", Password: "short", FullName: "far too long a name"})
	require.Error(t, err)

	var ve *auth.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "email must be a valid email address", ve.Fields["email"])
	assert.Equal(t, "password must be at least 8 characters long", ve.Fields["password"])
	assert.Equal(t, "full_name must be at most 10 characters long", ve.Fields["full_name"])
	assert.ErrorIs(t, err, auth.ErrValidation)
}

func TestStruct_CustomRules(t *testing.T) {
	v := New()
	err := v.Struct(projectInput{Slug: "Bad Slug", Role: "owner"})

	var ve *auth.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields["slug"], "lowercase")
	assert.Equal(t, "role must be user or admin", ve.Fields["role"])
}

func TestStruct_Required(t *testing.T) {
	v := New()
	err := v.Struct(signUpInput{})

	var ve *auth.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "email is required", ve.Fields["email"])
	assert.Equal(t, "password is required", ve.Fields["password"])
}
