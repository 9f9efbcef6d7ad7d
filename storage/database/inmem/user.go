package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) emailTaken(email, exclID string) bool {
	for _, u := range repo.db.users {
		if u.Email == email && u.ID != exclID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.emailTaken(usr.Email, "") {
		return user.User{}, core.NewValidationError(user.ErrEmailExists, core.FieldError{Field: "email", Error: user.ErrEmailExists.Error()})
	}
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	usr.Roles = append([]string(nil), usr.Roles...)
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok && (filter.Email == "" || usr.Email == filter.Email) {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.Email != "" {
		for _, usr := range repo.db.users {
			if usr.Email == filter.Email {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if repo.emailTaken(usr.Email, usr.ID) {
		return user.User{}, core.NewValidationError(user.ErrEmailExists, core.FieldError{Field: "email", Error: user.ErrEmailExists.Error()})
	}
	repo.db.users[usr.ID] = usr
	return usr, nil
}
