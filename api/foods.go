package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"elevenlab/auth"
	"elevenlab/ent"
	"elevenlab/store"
)

const topFoodsLimit = 12

func (s *Server) root(ctx *fiber.Ctx) error {
	return ctx.SendString("Eleven Lab Restaurant Server is running....")
}

func (s *Server) addFood(ctx *fiber.Ctx) error {
	var f ent.Food

	err := ctx.BodyParser(&f)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return fiber.NewError(http.StatusBadRequest, "name is required")
	}

	f.ID = ""
	f.PurchaseCount = 0
	f.CreatedAt = time.Now()

	if claims := auth.ClaimsFrom(ctx); claims != nil {
		if f.AddedBy == "" {
			f.AddedBy = claims.Email
		}
		if f.AddedByName == "" {
			f.AddedByName = claims.Name
		}
	}

	res, err := s.store.InsertFood(ctx.UserContext(), f)
	if err != nil {
		return err
	}

	return ctx.JSON(res)
}

func (s *Server) allFoods(ctx *fiber.Ctx) error {
	return s.findFoods(ctx, store.FoodFilter{})
}

func (s *Server) food(ctx *fiber.Ctx) error {
	f, err := s.store.FindFood(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(f)
}

func (s *Server) topFoods(ctx *fiber.Ctx) error {
	return s.findFoods(ctx, store.FoodFilter{
		MinPurchaseCount: 1,
		ByPopularity:     true,
		Limit:            topFoodsLimit,
	})
}

func (s *Server) search(ctx *fiber.Ctx) error {
	return s.findFoods(ctx, store.FoodFilter{Name: ctx.Query("search")})
}

func (s *Server) myFoods(ctx *fiber.Ctx) error {
	return s.findFoods(ctx, store.FoodFilter{AddedBy: ctx.Params("email")})
}

func (s *Server) findFoods(ctx *fiber.Ctx, filter store.FoodFilter) error {
	fs, err := s.store.FindFoods(ctx.UserContext(), filter)
	if err != nil {
		return err
	}

	return ctx.JSON(fs)
}

func (s *Server) updateFood(ctx *fiber.Ctx) error {
	var u ent.FoodUpdate

	err := ctx.BodyParser(&u)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := s.store.UpdateFood(ctx.UserContext(), ctx.Params("id"), u)
	if err != nil {
		return err
	}

	return ctx.JSON(res)
}
