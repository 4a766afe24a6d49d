package dto

import (
	"time"

	"github.com/vacvault/vacvault-api/internal/domain"
)

// EditUserRequest payload. Omitted fields keep their stored value.
type EditUserRequest struct {
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
	Country   string `json:"country" validate:"omitempty,max=100"`
	City      string `json:"city" validate:"omitempty,max=100"`
}

// UserResponse is the public view of an account. Credentials and codes are never included.
type UserResponse struct {
	ID          string      `json:"id"`
	ExternalID  int64       `json:"external_id"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Email       string      `json:"email"`
	PhoneNumber string      `json:"phone_number"`
	Country     string      `json:"country"`
	City        string      `json:"city"`
	Role        domain.Role `json:"role"`
	IsVerified  bool        `json:"is_verified"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// DataResponse wraps successful payloads.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		ExternalID:  u.ExternalID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Country:     u.Country,
		City:        u.City,
		Role:        u.Role,
		IsVerified:  u.IsVerified,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// NewUserListResponse maps a slice of domain users.
func NewUserListResponse(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, NewUserResponse(&users[i]))
	}
	return out
}
