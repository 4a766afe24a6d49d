package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vacvault/vacvault-api/internal/api/dto"
	"github.com/vacvault/vacvault-api/internal/auth"
	"github.com/vacvault/vacvault-api/internal/domain"
	"github.com/vacvault/vacvault-api/internal/service"
	apperrors "github.com/vacvault/vacvault-api/pkg/util/errorutil"
)

// UsersHandler exposes account endpoints.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService) *UsersHandler {
	return &UsersHandler{users: userService}
}

// ListUsers handles GET /api/users.
func (h *UsersHandler) ListUsers(c *fiber.Ctx) error {
	return h.list(c, domain.RoleUser)
}

// ListAdmins handles GET /api/users/admins.
func (h *UsersHandler) ListAdmins(c *fiber.Ctx) error {
	return h.list(c, domain.RoleAdmin)
}

func (h *UsersHandler) list(c *fiber.Ctx, role domain.Role) error {
	users, err := h.users.List(c.UserContext(), role)
	if err != nil {
		return err
	}
	return c.JSON(dto.DataResponse{Success: true, Data: dto.NewUserListResponse(users)})
}

// Me handles GET /api/users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.ErrMissingToken
	}
	user, err := h.users.Me(c.UserContext(), claims.UserID)
	if err != nil {
		return err
	}
	return c.JSON(dto.DataResponse{Success: true, Data: dto.NewUserResponse(user)})
}

// Edit handles PUT /api/users/edit.
func (h *UsersHandler) Edit(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.ErrMissingToken
	}
	var req dto.EditUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := h.users.EditInfo(c.UserContext(), claims.UserID, service.EditInfoInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Country:   req.Country,
		City:      req.City,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.DataResponse{Success: true, Data: dto.NewUserResponse(user)})
}

// Details handles GET /api/users/:id.
func (h *UsersHandler) Details(c *fiber.Ctx) error {
	user, err := h.users.Details(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.DataResponse{Success: true, Data: dto.NewUserResponse(user)})
}
