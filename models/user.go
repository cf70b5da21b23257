package models

import "time"

// User is the profile document stored under users/{id}.
// Token carries the session id token returned by the identity service and is
// distinct from the password submitted at sign-up/sign-in.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Token string `json:"token,omitempty"`
}

// Credentials are only ever sent to the identity service, never persisted.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
}

// UserAddress with an empty ID has not been persisted yet.
type UserAddress struct {
	ID      string `json:"id"`
	Street  string `json:"street"`
	Number  string `json:"number"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
}

type ProfileField uint8

const (
	ProfileUser ProfileField = 1 << iota
	ProfileAddresses

	allProfileFields = ProfileUser | ProfileAddresses
)

func (f ProfileField) String() string {
	switch f {
	case ProfileUser:
		return "user"
	case ProfileAddresses:
		return "addresses"
	default:
		return "unknown"
	}
}

var ProfileFields = []ProfileField{ProfileUser, ProfileAddresses}

// UserWithAddresses is an immutable snapshot of a profile and its addresses.
type UserWithAddresses struct {
	User      User
	Addresses []UserAddress

	Loaded ProfileField
	Failed map[ProfileField]error
}

func (u UserWithAddresses) Has(f ProfileField) bool {
	return u.Loaded&f != 0
}

func (u UserWithAddresses) Complete() bool {
	done := u.Loaded
	for f := range u.Failed {
		done |= f
	}
	return done&allProfileFields == allProfileFields
}

type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type SignUpRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ResetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type AddressRequest struct {
	ID      string `json:"id" validate:"omitempty,docid"`
	Street  string `json:"street" validate:"required,max=200"`
	Number  string `json:"number" validate:"required,max=20"`
	City    string `json:"city" validate:"required,max=100"`
	State   string `json:"state" validate:"required,max=100"`
	ZipCode string `json:"zip_code" validate:"required,zipcode"`
}

type UpdateProfileRequest struct {
	Name      string           `json:"name" validate:"required,max=100"`
	Email     string           `json:"email" validate:"required,email"`
	Phone     string           `json:"phone" validate:"omitempty,max=30"`
	Addresses []AddressRequest `json:"addresses" validate:"dive"`
}
