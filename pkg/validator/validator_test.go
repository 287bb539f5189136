package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type signup struct {
	Email    string   `json:"email" validate:"required,email"`
	Username string   `json:"username" validate:"required,min=2,max=32,username"`
	Slug     string   `json:"slug" validate:"slug"`
	Tags     []string `json:"tags" validate:"max=2,dive,min=3"`
	Role     string   `json:"role" validate:"omitempty,oneof=admin member"`
}

func TestStructValid(t *testing.T) {
	errs := Struct(&signup{Email: "a@example.com", Username: "al.ice_1", Slug: "my-slug", Tags: []string{"abc"}})
	assert.Nil(t, errs)
	assert.False(t, errs.HasErrors())
}

func TestStructMessages(t *testing.T) {
	errs := Struct(&signup{
		Email:    "nope",
		Username: "bad name",
		Slug:     "Not A Slug",
		Tags:     []string{"ok!", "x"},
		Role:     "owner",
	})
	assert.True(t, errs.HasErrors())
	assert.Equal(t, ValidationErrors{
		"email":    "Invalid email address",
		"username": "Can only contain letters, numbers, _, . and -",
		"slug":     "Can only contain lowercase letters, numbers and dashes",
		"tags[1]":  "Must be at least 3 characters",
		"role":     "Must be one of: admin, member",
	}, errs)
}

func TestStructRequiredAndSliceBounds(t *testing.T) {
	errs := Struct(&signup{Tags: []string{"aaa", "bbb", "ccc"}})
	assert.Equal(t, "This field is required", errs["email"])
	assert.Equal(t, "This field is required", errs["username"])
	assert.Equal(t, "Must contain at most 2 items", errs["tags"])
}

func TestStructNonStruct(t *testing.T) {
	errs := Struct("not a struct")
	assert.Contains(t, errs, "_")
}
