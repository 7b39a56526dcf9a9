package controllers

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/users"
)

// ActionsController serves data-layer custom actions. Actions report
// failures as a 200 with an error object so the data layer can surface the
// message to the caller instead of treating it as a transport fault.
type ActionsController struct {
	users    *users.Service
	validate *validator.Validate
}

var actionsController *ActionsController

func InitializeActionsController(userService *users.Service) {
	actionsController = &ActionsController{
		users:    userService,
		validate: validator.New(),
	}
}

type createUserActionRequest struct {
	Action struct {
		Name string `json:"name"`
	} `json:"action"`
	Input createUserActionInput `json:"input"`
}

type createUserActionInput struct {
	ID                    string          `json:"id" validate:"required"`
	Email                 string          `json:"email" validate:"required,email"`
	EmailVerified         bool            `json:"emailVerified"`
	AvatarURL             string          `json:"avatarUrl" validate:"omitempty,url"`
	Metadata              json.RawMessage `json:"metadata"`
	CreateBillingCustomer bool            `json:"createBillingCustomer"`
}

// HandleCreateUserAction processes POST /actions/create-user.
func HandleCreateUserAction(c *fiber.Ctx) error {
	return actionsController.handleCreateUser(c)
}

func (ac *ActionsController) handleCreateUser(c *fiber.Ctx) error {
	var req createUserActionRequest
	if err := c.BodyParser(&req); err != nil {
		return actionError(c, "invalid request body")
	}
	if err := ac.validate.Struct(req.Input); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) && len(verr) > 0 {
			return actionError(c, "invalid input: "+verr[0].Field())
		}
		return actionError(c, "invalid input")
	}

	user, err := ac.users.ProvisionUser(c.UserContext(), users.ProvisionInput{
		ID:                    req.Input.ID,
		Email:                 req.Input.Email,
		EmailVerified:         req.Input.EmailVerified,
		AvatarURL:             req.Input.AvatarURL,
		Metadata:              req.Input.Metadata,
		CreateBillingCustomer: req.Input.CreateBillingCustomer,
	})
	if err != nil {
		log.Errorf("[Actions] create-user for %s failed: %v", req.Input.ID, err)
		return actionError(c, err.Error())
	}

	return c.JSON(fiber.Map{"user": user})
}

func actionError(c *fiber.Ctx, message string) error {
	return c.JSON(fiber.Map{"error": fiber.Map{"message": message}})
}
