package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/counts_backend/models"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
)

func TestUserPasswordRoundTrip(t *testing.T) {
	setupTestDB(t)
	ctx := newTestContext(t)
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	user, err := models.CreateUser(ctx, &models.NewUser{
		BusinessId: businessId,
		Username:   "counter",
		Name:       "Counter",
		Password:   "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Password != "" {
		t.Fatal("returned user must not carry the stored hash")
	}

	if _, err := models.SignIn(ctx, "counter", "wrong"); err == nil {
		t.Fatal("sign in with a wrong password succeeded")
	}

	info, err := models.SignIn(ctx, "counter", "s3cret-pass")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if info.Token == "" {
		t.Fatal("sign in returned no token")
	}
}
