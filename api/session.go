package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"elevenlab/auth"
)

type loginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) login(ctx *fiber.Ctx) error {
	var req loginRequest

	err := ctx.BodyParser(&req)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	token, exp, err := s.issuer.Issue(req.Email, req.Name)
	if errors.Is(err, auth.ErrNoEmail) {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}

	ctx.Cookie(s.issuer.Cookie(token, exp))

	return ctx.JSON(fiber.Map{"success": true})
}

func (s *Server) logout(ctx *fiber.Ctx) error {
	ctx.Cookie(s.issuer.ExpiredCookie())

	return ctx.JSON(fiber.Map{"success": true})
}
