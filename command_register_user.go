package auth

import (
	"context"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z]([_]?[a-zA-Z0-9])+$`)

type RegisterUserMessage struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url"`
	Password   string `json:"password"`
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate checks the message before anything touches the database
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Username,
			validation.Required,
			validation.Length(2, 24),
			validation.Match(usernamePattern),
		),
		validation.Field(&e.Email, validation.Required, is.EmailFormat),
		validation.Field(&e.Password, validation.Required),
		validation.Field(&e.AvatarURL, is.URL),
	)
}

type RegisterUserResponse struct {
	Account *Account
	Email   *Email
}

type RegisterUserHandler struct {
	f *flow
}

func NewRegisterUserHandler(repo RepositoryManager, opts ...Option) *RegisterUserHandler {
	return &RegisterUserHandler{f: newFlow(repo, opts...)}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	if err := cancelled(ctx, "user registration"); err != nil {
		return err
	}
	return h.execute(ctx, event)
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	event.Username = strings.TrimSpace(event.Username)
	event.Email = strings.TrimSpace(event.Email)

	if err := event.Validate(); err != nil {
		return registrationValidationError(err)
	}

	hash, err := h.f.hasher.HashPassword(event.Password)
	if err != nil {
		return err
	}

	ctx, cancel := h.f.withTimeout(ctx)
	defer cancel()

	resp := &RegisterUserResponse{}
	registrar := h.f.registrar()

	err = h.f.retry(ctx, func(ctx context.Context) error {
		return h.f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			taken, err := h.f.repo.Accounts().UsernameExistsTx(ctx, tx, event.Username)
			if err != nil {
				return err
			}
			if taken {
				return ErrUsernameTaken
			}

			resp.Account, resp.Email, err = registrar.CreateAccountTx(ctx, tx, NewAccount{
				Username:     event.Username,
				Name:         event.Name,
				AvatarURL:    event.AvatarURL,
				PasswordHash: hash,
				Email:        event.Email,
			})
			return err
		})
	})

	if err != nil {
		return internalError(err, "user registration transaction failed")
	}

	h.f.record(ctx, ActivityEventAccountRegistered, resp.Account.ID, map[string]any{
		"method": "password",
	})

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// registrationValidationError maps ozzo field errors to the package sentinels
func registrationValidationError(err error) error {
	fields, ok := err.(validation.Errors)
	if !ok {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration")
	}

	switch {
	case fields["password"] != nil:
		return ErrNoEmptyString
	case fields["username"] != nil:
		return ErrInvalidUsername
	case fields["email"] != nil:
		return ErrInvalidEmail
	}

	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration").
		WithCode(goerrors.CodeBadRequest)
}
