package directory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFullName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		ok    bool
	}{
		{"two chars", "Ab", true},
		{"normal name", "Priya Nair", true},
		{"trailing spaces trimmed", "  Jo  ", true},
		{"empty", "", false},
		{"only spaces", "    ", false},
		{"single char", "A", false},
		{"single char padded", " A ", false},
		{"single multibyte char", "é", false},
		{"two multibyte chars", "éé", true},
		{"devanagari name", strings.Repeat("ह", 120), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFullName(tc.input)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	assert.Error(t, ValidateFullName(strings.Repeat("x", 201)))
	assert.NoError(t, ValidateFullName(strings.Repeat("x", 200)))
	// the limit counts characters, not bytes
	assert.NoError(t, ValidateFullName(strings.Repeat("ह", 200)))
	assert.Error(t, ValidateFullName(strings.Repeat("ह", 201)))
}

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone("9876543210"))
	assert.NoError(t, ValidatePhone("(987) 654-3210"))
	assert.NoError(t, ValidatePhone("987-654-3210"))
	assert.Error(t, ValidatePhone("12345"))
	assert.Error(t, ValidatePhone("98765432100"))
	assert.Error(t, ValidatePhone(""))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail(""), "email is optional")
	assert.NoError(t, ValidateEmail("a@b.com"))
	assert.Error(t, ValidateEmail("not-an-email"))
	assert.Error(t, ValidateEmail("has space@b.com"))
	assert.Error(t, ValidateEmail("a@b"))
}

func TestValidateCourse(t *testing.T) {
	assert.NoError(t, ValidateCourse("physics"))
	assert.Error(t, ValidateCourse(""))
	assert.Error(t, ValidateCourse("   "))
}

type formClientStub struct {
	created   []CreateStudent
	updated   []StudentPatch
	updateIDs []string
	err       error
}

func (s *formClientStub) Create(ctx context.Context, payload CreateStudent) (*Student, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, payload)
	return &Student{ID: "s-1", FullName: payload.FullName}, nil
}

func (s *formClientStub) Update(ctx context.Context, id string, patch StudentPatch) (*Student, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.updateIDs = append(s.updateIDs, id)
	s.updated = append(s.updated, patch)
	return &Student{ID: id}, nil
}

func TestFormErrorsHiddenUntilInteraction(t *testing.T) {
	form := NewCreateForm(&formClientStub{})

	assert.Empty(t, form.FieldError(FieldFullName), "pristine field shows no error")
	assert.Empty(t, form.FieldError(FieldPhone))

	form.Blur(FieldFullName)
	assert.NotEmpty(t, form.FieldError(FieldFullName))
	assert.Empty(t, form.FieldError(FieldPhone), "blurring one field does not expose others")
}

func TestFormSubmitExposesAllErrors(t *testing.T) {
	stub := &formClientStub{}
	form := NewCreateForm(stub)
	form.SetField(FieldFullName, "X")

	err := form.Submit()
	require.ErrorIs(t, err, ErrInvalidForm)

	assert.NotEmpty(t, form.FieldError(FieldFullName))
	assert.NotEmpty(t, form.FieldError(FieldPhone))
	assert.NotEmpty(t, form.FieldError(FieldCourse))
	assert.Empty(t, stub.created, "invalid form never reaches the server")
	assert.True(t, form.Open())
}

func TestFormSubmitCreateSuccess(t *testing.T) {
	stub := &formClientStub{}
	refetched := false
	form := NewCreateForm(stub, WithOnSuccess(func() { refetched = true }))

	form.SetField(FieldFullName, "  Priya Nair  ")
	form.SetField(FieldPhone, "(987) 654-3210")
	form.SetField(FieldCourse, "physics")
	form.SetField(FieldEmail, "priya@example.com")

	require.NoError(t, form.Submit())
	require.Len(t, stub.created, 1)
	assert.Equal(t, "Priya Nair", stub.created[0].FullName, "name is trimmed before sending")
	assert.False(t, form.Open(), "successful submit closes the form")
	assert.True(t, refetched)
}

func TestFormSubmitServerFailureKeepsFormOpen(t *testing.T) {
	stub := &formClientStub{err: &CallError{Kind: KindServer, Status: 409, Message: "phone already registered"}}
	form := NewCreateForm(stub)

	form.SetField(FieldFullName, "Priya Nair")
	form.SetField(FieldPhone, "9876543210")
	form.SetField(FieldCourse, "physics")

	err := form.Submit()
	require.Error(t, err)
	assert.True(t, form.Open())
	assert.False(t, form.Submitting())
	assert.Equal(t, "phone already registered", form.ServerError())
}

func TestFormEditPrefillsAndPatches(t *testing.T) {
	stub := &formClientStub{}
	email := "arjun@example.com"
	form := NewEditForm(stub, Student{
		ID:       "s-42",
		FullName: "Arjun Mehta",
		Phone:    "9876543210",
		Course:   "ielts-prep",
		Email:    &email,
		Status:   "active",
	})

	assert.Equal(t, "Arjun Mehta", form.Values().FullName)
	assert.Equal(t, email, form.Values().Email)

	form.SetField(FieldCourse, "gre-prep")
	require.NoError(t, form.Submit())

	require.Equal(t, []string{"s-42"}, stub.updateIDs)
	require.Len(t, stub.updated, 1)
	require.NotNil(t, stub.updated[0].Course)
	assert.Equal(t, "gre-prep", *stub.updated[0].Course)
	assert.Nil(t, stub.updated[0].JoinedAt, "join date never set, so the patch omits it")
}

func TestFormEditPatchesJoinDate(t *testing.T) {
	stub := &formClientStub{}
	form := NewEditForm(stub, Student{
		ID:       "s-42",
		FullName: "Arjun Mehta",
		Phone:    "9876543210",
		Course:   "ielts-prep",
		Status:   "active",
		JoinedAt: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "2026-02-10", form.Values().JoinedAt)
	require.NoError(t, form.Submit())

	require.Len(t, stub.updated, 1)
	require.NotNil(t, stub.updated[0].JoinedAt)
	assert.Equal(t, "2026-02-10", *stub.updated[0].JoinedAt)
}
