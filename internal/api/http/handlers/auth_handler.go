package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vacvault/vacvault-api/internal/api/dto"
	"github.com/vacvault/vacvault-api/internal/domain"
	"github.com/vacvault/vacvault-api/internal/service"
	"github.com/vacvault/vacvault-api/pkg/util/validate"
)

// AuthHandler exposes the registration, verification, login and reset endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	_, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		Country:     req.Country,
		City:        req.City,
		Role:        domain.Role(req.Role),
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.MessageResponse{
		Msg: "User registered. Check your email for verification.",
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.TokenResponse{Token: res.Token})
}

// VerifyEmail handles POST /api/auth/verify-email.
func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	var req dto.VerifyOTPRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.auth.VerifyEmail(c.UserContext(), req.Email, req.OTP); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Msg: "Email verified successfully"})
}

// RequestPasswordReset handles POST /api/auth/request-password-reset.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.auth.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Msg: "Password reset OTP sent to email"})
}

// VerifyPasswordResetOTP handles POST /api/auth/verify-password-reset-otp.
func (h *AuthHandler) VerifyPasswordResetOTP(c *fiber.Ctx) error {
	var req dto.VerifyOTPRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.auth.VerifyPasswordResetOTP(c.UserContext(), req.Email, req.OTP); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Msg: "OTP verified. You can now set a new password."})
}

// SetNewPassword handles POST /api/auth/set-new-password.
func (h *AuthHandler) SetNewPassword(c *fiber.Ctx) error {
	var req dto.SetNewPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.auth.SetNewPassword(c.UserContext(), req.Email, req.OTP, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Msg: "Password reset successfully"})
}

func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	return validate.Struct(dst)
}
