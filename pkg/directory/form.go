package directory

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Form field names, shared by SetField, Blur and FieldError.
const (
	FieldFullName = "fullName"
	FieldPhone    = "phone"
	FieldCourse   = "course"
	FieldEmail    = "email"
)

// ErrInvalidForm is returned by Submit when client-side validation fails.
// Nothing is sent to the server in that case.
var ErrInvalidForm = errors.New("form has validation errors")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateFullName checks the trimmed name is 2 to 200 characters. Length
// is counted in runes so non-ASCII names are measured correctly.
func ValidateFullName(name string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(name))
	if length < 2 || length > 200 {
		return errors.New("full name must be between 2 and 200 characters")
	}
	return nil
}

// ValidatePhone requires exactly 10 digits once every non-digit character
// is stripped, so "(987) 654-3210" passes.
func ValidatePhone(phone string) error {
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits != 10 {
		return errors.New("phone must contain exactly 10 digits")
	}
	return nil
}

// ValidateCourse requires a non-empty course.
func ValidateCourse(course string) error {
	if strings.TrimSpace(course) == "" {
		return errors.New("course is required")
	}
	return nil
}

// ValidateEmail accepts an empty value; a present value must look like
// local@domain.tld.
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	if !emailPattern.MatchString(email) {
		return errors.New("enter a valid email address")
	}
	return nil
}

// formClient is the slice of the client the form consumes.
type formClient interface {
	Create(ctx context.Context, payload CreateStudent) (*Student, error)
	Update(ctx context.Context, id string, patch StudentPatch) (*Student, error)
}

// FormValues holds the editable fields as entered.
type FormValues struct {
	FullName string
	Phone    string
	Course   string
	Email    string
	Status   string
	JoinedAt string
	Notes    string
}

// Form drives one create or edit flow. Field errors stay hidden until the
// field has been blurred once or a submit was attempted, so pristine fields
// never show errors.
type Form struct {
	client    formClient
	ctx       context.Context
	studentID string

	values      FormValues
	touched     map[string]bool
	submitted   bool
	submitting  bool
	serverError string
	open        bool
	onSuccess   func()
}

// FormOption customises a Form.
type FormOption func(*Form)

// WithFormContext sets the context used for submit requests.
func WithFormContext(ctx context.Context) FormOption {
	return func(f *Form) { f.ctx = ctx }
}

// WithOnSuccess registers a callback run after a successful submit,
// typically the list controller's Reload.
func WithOnSuccess(fn func()) FormOption {
	return func(f *Form) { f.onSuccess = fn }
}

// NewCreateForm opens a blank form for registering a student.
func NewCreateForm(client formClient, opts ...FormOption) *Form {
	f := &Form{
		client:  client,
		ctx:     context.Background(),
		touched: make(map[string]bool),
		open:    true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewEditForm opens a form prefilled from an existing student.
func NewEditForm(client formClient, student Student, opts ...FormOption) *Form {
	f := NewCreateForm(client, opts...)
	f.studentID = student.ID
	f.values = FormValues{
		FullName: student.FullName,
		Phone:    student.Phone,
		Course:   student.Course,
		Status:   student.Status,
	}
	if !student.JoinedAt.IsZero() {
		f.values.JoinedAt = student.JoinedAt.Format("2006-01-02")
	}
	if student.Email != nil {
		f.values.Email = *student.Email
	}
	if student.Notes != nil {
		f.values.Notes = *student.Notes
	}
	return f
}

// Values returns the current field values.
func (f *Form) Values() FormValues { return f.values }

// Open reports whether the form is still showing.
func (f *Form) Open() bool { return f.open }

// Submitting reports whether a submit request is outstanding; controls
// should be disabled while true.
func (f *Form) Submitting() bool { return f.submitting }

// ServerError returns the message of the last failed submit, shown above
// the fields.
func (f *Form) ServerError() string { return f.serverError }

// SetField updates one field's value.
func (f *Form) SetField(field, value string) {
	switch field {
	case FieldFullName:
		f.values.FullName = value
	case FieldPhone:
		f.values.Phone = value
	case FieldCourse:
		f.values.Course = value
	case FieldEmail:
		f.values.Email = value
	}
}

// Blur marks a field as interacted with, enabling its inline error.
func (f *Form) Blur(field string) {
	f.touched[field] = true
}

func (f *Form) errorFor(field string) string {
	var err error
	switch field {
	case FieldFullName:
		err = ValidateFullName(f.values.FullName)
	case FieldPhone:
		err = ValidatePhone(f.values.Phone)
	case FieldCourse:
		err = ValidateCourse(f.values.Course)
	case FieldEmail:
		err = ValidateEmail(f.values.Email)
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// FieldError returns the field's validation message, or empty while the
// field is pristine and no submit has been attempted.
func (f *Form) FieldError(field string) string {
	if !f.touched[field] && !f.submitted {
		return ""
	}
	return f.errorFor(field)
}

// Valid reports whether every field passes validation.
func (f *Form) Valid() bool {
	for _, field := range []string{FieldFullName, FieldPhone, FieldCourse, FieldEmail} {
		if f.errorFor(field) != "" {
			return false
		}
	}
	return true
}

// Submit validates everything and calls create or update. A validation
// failure returns ErrInvalidForm without touching the server. A server
// failure keeps the form open with the message available via ServerError.
// Success closes the form and runs the success callback.
func (f *Form) Submit() error {
	f.submitted = true
	if !f.Valid() {
		return ErrInvalidForm
	}

	f.submitting = true
	f.serverError = ""

	var err error
	if f.studentID == "" {
		_, err = f.client.Create(f.ctx, CreateStudent{
			FullName: strings.TrimSpace(f.values.FullName),
			Phone:    f.values.Phone,
			Course:   strings.TrimSpace(f.values.Course),
			Email:    f.values.Email,
			Status:   f.values.Status,
			JoinedAt: f.values.JoinedAt,
			Notes:    f.values.Notes,
		})
	} else {
		fullName := strings.TrimSpace(f.values.FullName)
		course := strings.TrimSpace(f.values.Course)
		patch := StudentPatch{
			FullName: &fullName,
			Phone:    &f.values.Phone,
			Course:   &course,
			Email:    &f.values.Email,
			Status:   &f.values.Status,
			Notes:    &f.values.Notes,
		}
		if f.values.JoinedAt != "" {
			patch.JoinedAt = &f.values.JoinedAt
		}
		_, err = f.client.Update(f.ctx, f.studentID, patch)
	}

	f.submitting = false
	if err != nil {
		var callErr *CallError
		if errors.As(err, &callErr) {
			f.serverError = callErr.Message
		} else {
			f.serverError = err.Error()
		}
		return err
	}

	f.open = false
	if f.onSuccess != nil {
		f.onSuccess()
	}
	return nil
}

// Cancel closes the form without saving.
func (f *Form) Cancel() {
	f.open = false
}
