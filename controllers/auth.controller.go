package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/security"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

type SignupInput struct {
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=6"`
	Role          string `json:"role" binding:"omitempty,oneof=patient doctor"`
	Position      string `json:"position" binding:"omitempty,max=100"`
	Qualification string `json:"qualification" binding:"omitempty,max=100"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileInput struct {
	Name          *string `json:"name" binding:"omitempty,max=100"`
	Position      *string `json:"position" binding:"omitempty,max=100"`
	Qualification *string `json:"qualification" binding:"omitempty,max=100"`
	Password      *string `json:"password" binding:"omitempty,min=6"`
}

var (
	signupMessages = fieldMessages{
		"Name.required":     "Name, email and password are required",
		"Email.required":    "Name, email and password are required",
		"Password.required": "Name, email and password are required",
		"Email.email":       "Email address is not valid",
		"Password.min":      "Password must be at least 6 characters",
		"Role":              "Role must be patient or doctor",
	}
	loginMessages = fieldMessages{
		"Email":    "Email and password are required",
		"Password": "Email and password are required",
	}
	profileMessages = fieldMessages{
		"Password.min": "Password must be at least 6 characters",
	}
)

func (h *Handler) Signup(c *gin.Context) {
	var input SignupInput
	if !bindJSON(c, &input, signupMessages) {
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		security.SendValidationError(c, "Name, email and password are required", nil)
		return
	}
	if input.Role == "" {
		input.Role = models.RolePatient
	}

	ctx := c.Request.Context()
	if _, err := h.Store.GetUserByEmail(ctx, input.Email); err == nil {
		security.SendError(c, http.StatusBadRequest, security.CodeUserExists, "User already exists", "User already exists", nil)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.dbError(c, "Failed to look up user", err)
		return
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		h.internalError(c, "Failed to hash password", err)
		return
	}
	user := &models.User{
		Name:          input.Name,
		Email:         input.Email,
		PasswordHash:  hash,
		Role:          input.Role,
		Credits:       models.DefaultCredits,
		Position:      strings.TrimSpace(input.Position),
		Qualification: strings.TrimSpace(input.Qualification),
	}
	if err := h.Store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			security.SendError(c, http.StatusBadRequest, security.CodeUserExists, "User already exists", "User already exists", nil)
			return
		}
		h.dbError(c, "Failed to create user", err)
		return
	}

	token, err := h.Tokens.Sign(user.ID, user.Role)
	if err != nil {
		h.internalError(c, "Failed to sign token", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"userId":  user.ID,
		"token":   token,
		"user":    user.Summary(),
	})
}

func (h *Handler) Login(c *gin.Context) {
	var input LoginInput
	if !bindJSON(c, &input, loginMessages) {
		return
	}
	input.Email = strings.TrimSpace(input.Email)

	user, err := h.Store.GetUserByEmail(c.Request.Context(), input.Email)
	if errors.Is(err, store.ErrNotFound) {
		security.SendError(c, http.StatusBadRequest, security.CodeInvalidCredentials, "Invalid credentials", "User does not exist", nil)
		return
	}
	if err != nil {
		h.dbError(c, "Failed to look up user", err)
		return
	}
	if user.PasswordHash == "" || !security.CheckPassword(user.PasswordHash, input.Password) {
		security.SendError(c, http.StatusBadRequest, security.CodeInvalidCredentials, "Invalid credentials", "Invalid password", nil)
		return
	}

	token, err := h.Tokens.Sign(user.ID, user.Role)
	if err != nil {
		h.internalError(c, "Failed to sign token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user.Summary(),
	})
}

func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.Store.GetUserByID(c.Request.Context(), userID(c))
	if errors.Is(err, store.ErrNotFound) {
		security.SendNotFoundError(c, "User not found")
		return
	}
	if err != nil {
		h.dbError(c, "Failed to load profile", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var input UpdateProfileInput
	if !bindJSON(c, &input, profileMessages) {
		return
	}

	var upd models.UserUpdate
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			security.SendValidationError(c, "Name cannot be empty", nil)
			return
		}
		upd.Name = &name
	}
	if input.Position != nil {
		position := strings.TrimSpace(*input.Position)
		upd.Position = &position
	}
	if input.Qualification != nil {
		qualification := strings.TrimSpace(*input.Qualification)
		upd.Qualification = &qualification
	}
	if input.Password != nil {
		hash, err := security.HashPassword(*input.Password)
		if err != nil {
			h.internalError(c, "Failed to hash password", err)
			return
		}
		upd.PasswordHash = &hash
	}
	if upd.Empty() {
		security.SendValidationError(c, "No fields to update", nil)
		return
	}

	user, err := h.Store.UpdateUser(c.Request.Context(), userID(c), upd)
	if errors.Is(err, store.ErrNotFound) {
		security.SendNotFoundError(c, "User not found")
		return
	}
	if err != nil {
		h.dbError(c, "Failed to update profile", err)
		return
	}
	c.JSON(http.StatusOK, user)
}
