package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/StephenSouth13/moveup/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("user")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service interface {
		Create(ctx context.Context, nu NewUser, roles ...string) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		// UpdateOrCreate sets name, roles & password of the user with that email, creating it if needed.
		UpdateOrCreate(ctx context.Context, name, email, pwd string, roles []string) (User, error)
		SetPassword(ctx context.Context, email, pwd string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, nu NewUser, roles ...string) (User, error) {
	if _, err := svc.GetByEmail(ctx, nu.Email); err == nil {
		return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	} else if !core.IsNotFound(err) {
		return User{}, errors.Wrap(err, "checking email uniqueness")
	}

	if len(roles) == 0 {
		roles = []string{RoleStudent}
	}
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     core.CleanString(nu.Email, true /* lower */),
		Roles:     roles,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) UpdateOrCreate(ctx context.Context, name, email, pwd string, roles []string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil && !core.IsNotFound(err) {
		return User{}, errors.Wrap(err, "finding user by email")
	}
	exists := err == nil

	now := time.Now().UTC()
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	usr.Email = email
	usr.Roles = roles
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	if exists {
		return svc.repo.UpdateUser(ctx, usr)
	}
	usr.CreatedAt = now
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) SetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}
