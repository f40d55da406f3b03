package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/tendant/user-permission/pkg/config"
	apperrors "github.com/tendant/user-permission/pkg/errors"
	"github.com/tendant/user-permission/pkg/identity"
	"github.com/tendant/user-permission/pkg/password"
)

type UserInfo struct {
	Name     string
	Email    string
	Password string
	RoleName string
}

// identityService is the subset of identity.Service the seeding needs.
type identityService interface {
	Register(ctx context.Context, params identity.RegisterParams) (identity.UserView, error)
	Authenticate(ctx context.Context, email, password string) (identity.UserView, bool, error)
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error
	GetByID(ctx context.Context, id uuid.UUID) (identity.UserView, bool, error)
}

func main() {
	// Parse command line arguments
	name := flag.String("name", "", "Name for the new user (required)")
	email := flag.String("email", "", "Email for the new user (required)")
	pwd := flag.String("password", "", "Password for the new user (required)")
	roleName := flag.String("role", "", "Role to assign to the user (required)")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	if *name == "" || *email == "" || *pwd == "" || *roleName == "" {
		fmt.Println("Error: name, email, password, and role are required")
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	info := UserInfo{
		Name:     *name,
		Email:    *email,
		Password: *pwd,
		RoleName: *roleName,
	}
	if err := run(context.Background(), *envFile, info); err != nil {
		slog.Error("Failed to initialize user", "email", *email, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string, info UserInfo) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	switch cfg.Persistence.Type {
	case "", "memory", "inmem":
		slog.Warn("Persistence type is in-memory; the user is discarded when this command exits")
	}

	store, err := identity.NewStore(ctx, cfg.Persistence.Type, cfg.StoreConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	hasher, err := password.NewHasher(cfg.Password.HashScheme)
	if err != nil {
		return err
	}
	service := identity.NewService(store, identity.WithHasher(hasher))

	user, err := seedUser(ctx, service, info)
	if err != nil {
		return err
	}
	slog.Info("User initialized", "id", user.ID, "email", user.Email, "roles", user.Roles)
	return nil
}

// seedUser registers the user, or reuses it when the email is taken and the
// password matches, then assigns the role.
func seedUser(ctx context.Context, service identityService, info UserInfo) (identity.UserView, error) {
	user, err := service.Register(ctx, identity.RegisterParams{
		Name:     info.Name,
		Email:    info.Email,
		Password: info.Password,
	})
	switch {
	case err == nil:
		slog.Info("User created", "id", user.ID, "email", user.Email)
	case apperrors.IsCode(err, apperrors.ErrCodeConflict):
		existing, ok, authErr := service.Authenticate(ctx, info.Email, info.Password)
		if authErr != nil {
			return identity.UserView{}, authErr
		}
		if !ok {
			return identity.UserView{}, errors.New("user already exists with a different password")
		}
		slog.Info("Using existing user", "id", existing.ID, "email", existing.Email)
		user = existing
	default:
		return identity.UserView{}, err
	}

	if err := service.AssignRole(ctx, user.ID, info.RoleName); err != nil {
		return identity.UserView{}, fmt.Errorf("failed to assign role %q: %w", info.RoleName, err)
	}

	updated, ok, err := service.GetByID(ctx, user.ID)
	if err != nil {
		return identity.UserView{}, err
	}
	if !ok {
		return identity.UserView{}, fmt.Errorf("user %s disappeared after role assignment", user.ID)
	}
	return updated, nil
}
