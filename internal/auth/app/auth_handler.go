package app

import (
	"context"
	"errors"
	"time"

	errprocess "direct_chat_service/pkg/err"
	"direct_chat_service/pkg/logger"
	"direct_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	usecase AuthUseCase
	timeout time.Duration
}

// NewAuthHandler 创建新的 AuthHandler
func NewAuthHandler(usecase AuthUseCase, timeout time.Duration) *AuthHandler {
	return &AuthHandler{usecase: usecase, timeout: timeout}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *AuthHandler) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.timeout)
}

// Register 注册新用户
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	logger.Log.Debug("Register request", zap.String("email", req.Email))

	ctx, cancel := h.requestContext()
	defer cancel()

	account, err := h.usecase.SignUp(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "register success",
		"user_id": account.ID,
	})
}

// Login 用户登录, the token is returned and also set as cookie
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	ctx, cancel := h.requestContext()
	defer cancel()

	session, err := h.usecase.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return errorResponse(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     middlewares.CookieToken,
		Value:    session.AccessToken,
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"message": "login success", "session": session})
}

// Logout 用户登出
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	accessToken, _ := c.Locals(middlewares.TokenAccess).(string)

	ctx, cancel := h.requestContext()
	defer cancel()

	if err := h.usecase.SignOut(ctx, accessToken); err != nil {
		logger.Log.Warn("sign out", zap.Error(err))
	}

	c.ClearCookie(middlewares.CookieToken)
	return c.JSON(fiber.Map{"message": "logout success"})
}

// Session returns the current session, used to restore a login
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext()
	defer cancel()

	session, err := h.usecase.GetSession(ctx, middlewares.TokenFromRequest(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"session": session})
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, errprocess.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, errprocess.ErrInvalidCredentials), errors.Is(err, errprocess.ErrNotAuthenticated):
		status = fiber.StatusUnauthorized
	case errors.Is(err, errprocess.ErrDuplicateRegistration):
		status = fiber.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusGatewayTimeout
	}

	if status == fiber.StatusInternalServerError {
		logger.Log.Error("auth request failed", zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
