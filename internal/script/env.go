package script

import (
	"fmt"
	"strings"

	"servicesim/internal/invalid"

	"github.com/go-faker/faker/v4"
)

// Env is the evaluation context of a script.
type Env struct {
	Data   map[string]string `expr:"data"`
	Out    *Output           `expr:"out"`
	Result *Result           `expr:"result"`
	Fake   Fake              `expr:"fake"`
	Garble Garble            `expr:"garble"`
}

func newEnv(data map[string]string, status int, contentType string) Env {
	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}

	return Env{
		Data:   copied,
		Out:    &Output{},
		Result: &Result{Status: status, ContentType: contentType},
	}
}

// Output collects the response body.
type Output struct {
	buf strings.Builder
}

// Write appends every value to the body and returns the number of bytes
// written.
func (o *Output) Write(values ...any) int {
	n := 0
	for _, v := range values {
		s := fmt.Sprint(v)
		o.buf.WriteString(s)
		n += len(s)
	}
	return n
}

// Writeln is Write followed by a newline.
func (o *Output) Writeln(values ...any) int {
	n := o.Write(values...)
	o.buf.WriteByte('\n')
	return n + 1
}

func (o *Output) String() string {
	return o.buf.String()
}

// Result is the mutable status/content type record.
type Result struct {
	Status      int
	ContentType string
}

func (r *Result) SetStatus(code int) int {
	r.Status = code
	return code
}

func (r *Result) SetContentType(contentType string) string {
	r.ContentType = contentType
	return contentType
}

// Fake generates plausible random values.
type Fake struct{}

func (Fake) Name() string {
	var person struct {
		FirstName string `faker:"first_name"`
		LastName  string `faker:"last_name"`
	}
	_ = faker.FakeData(&person)
	return person.FirstName + " " + person.LastName
}

func (Fake) Email() string {
	var user struct {
		Email string `faker:"email"`
	}
	_ = faker.FakeData(&user)
	return user.Email
}

func (Fake) Phone() string {
	var user struct {
		Phone string `faker:"phone_number"`
	}
	_ = faker.FakeData(&user)
	return user.Phone
}

func (Fake) UUID() string {
	var id struct {
		UUID string `faker:"uuid_hyphenated"`
	}
	_ = faker.FakeData(&id)
	return id.UUID
}

func (Fake) Sentence() string {
	var text struct {
		Sentence string `faker:"sentence"`
	}
	_ = faker.FakeData(&text)
	return text.Sentence
}

// Garble produces malformed or unusual encodings.
type Garble struct{}

// UTF8 returns an invalid UTF-8 string of the named kind (incomplete,
// continuation, overlong, invalid_range, surrogate, random).
func (Garble) UTF8(kind string) string {
	return invalid.UTF8(kind)
}

func (Garble) Valid() string {
	return invalid.Valid()
}
