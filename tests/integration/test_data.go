package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lmercier/portcullis/internal/models"
	"github.com/lmercier/portcullis/internal/services"
	pkgauth "github.com/lmercier/portcullis/pkg/auth"
)

// TestUser generates unique test credentials using a timestamp
func TestUser(suffix string) (username, password string) {
	ts := time.Now().UnixNano()
	username = fmt.Sprintf("test-%d-%s", ts, suffix)
	password = "TestPassword123!"
	return
}

// SeedUser inserts a user with a real bcrypt hash into any user store.
func SeedUser(t *testing.T, users services.UserStore, username, password string) *models.User {
	t.Helper()

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user, err := users.Create(context.Background(), &models.User{
		Username:     username,
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}
