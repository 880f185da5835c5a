package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/repository"
	"github.com/iliyamo/venue-booking/internal/repository/memory"
	"github.com/iliyamo/venue-booking/internal/utils"
)

type seedUser struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

type seedFile struct {
	Users []seedUser   `json:"users"`
	Halls []model.Hall   `json:"halls"`
}

// loadSeed fills a memory store from a JSON fixture.  Passwords are hashed
// on load.
func loadSeed(st *memory.Store, r io.Reader, bcryptCost int) (users, halls int, err error) {
	var f seedFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return 0, 0, fmt.Errorf("decode seed: %w", err)
	}
	for _, u := range f.Users {
		if !u.Role.Valid() || u.Email == "" || u.Password == "" {
			return users, halls, fmt.Errorf("seed user %q: email, password and a valid role are required", u.Email)
		}
		hash, err := utils.HashPassword(u.Password, bcryptCost)
		if err != nil {
			return users, halls, err
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		st.PutUser(model.User{ID: u.ID, Email: u.Email, PasswordHash: hash, Role: u.Role, IsActive: true})
		users++
	}
	for _, h := range f.Halls {
		if h.ID == "" || h.OwnerID == "" {
			return users, halls, fmt.Errorf("seed hall %q: id and owner_id are required", h.Name)
		}
		st.PutHall(h)
		halls++
	}
	return users, halls, nil
}

// ensureAdmin creates the bootstrap admin unless the email is taken.
func ensureAdmin(ctx context.Context, users repository.UserRegistry, email, password string, bcryptCost int) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	if _, err := users.UserByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	hash, err := utils.HashPassword(password, bcryptCost)
	if err != nil {
		return false, err
	}
	err = users.CreateUser(ctx, &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		IsActive:     true,
	})
	if errors.Is(err, repository.ErrEmailExists) {
		return false, nil
	}
	return err == nil, err
}
