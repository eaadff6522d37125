package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"elevenlab/auth"
	"elevenlab/purchase"
	"elevenlab/store"
)

func (s *Server) foodPurchase(ctx *fiber.Ctx) error {
	var req purchase.Request

	err := ctx.BodyParser(&req)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	var payload map[string]interface{}
	if json.Unmarshal(ctx.Body(), &payload) == nil {
		req.Extra = purchase.Extras(payload)
	}

	if claims := auth.ClaimsFrom(ctx); claims != nil && req.BuyerEmail == "" {
		req.BuyerEmail = claims.Email
		if req.BuyerName == "" {
			req.BuyerName = claims.Name
		}
	}

	res, err := s.purchases.Purchase(ctx.UserContext(), req)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, "food not found")
	}
	if err != nil {
		return err
	}

	return ctx.JSON(res)
}

func (s *Server) myPurchases(ctx *fiber.Ctx) error {
	ps, err := s.store.FindPurchases(ctx.UserContext(), ctx.Params("email"))
	if err != nil {
		return err
	}

	return ctx.JSON(ps)
}

func (s *Server) deleteOrder(ctx *fiber.Ctx) error {
	res, err := s.store.DeletePurchase(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(res)
}

func (s *Server) purchaseFeed() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		defer c.Close()

		ps, cancel := s.hub.Subscribe(16)
		defer cancel()

		// The client never sends anything useful; reading only detects the close.
		go func() {
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		for p := range ps {
			if err := c.WriteJSON(p); err != nil {
				logrus.WithError(err).Debug("purchase feed subscriber gone")
				return
			}
		}
	})
}
