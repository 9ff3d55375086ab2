// seed-admin bootstraps a fresh deployment: it creates the business (if
// none exists), the admin console user, and a starter milk catalog.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/models"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "countsAdmin"
	adminName     = "Counts Admin"
)

var starterCatalog = []models.NewCountItem{
	{Name: "Whole Milk", Category: "Dairy", Par: 12, DisplayOrder: 1},
	{Name: "2% Milk", Category: "Dairy", Par: 10, DisplayOrder: 2},
	{Name: "Skim Milk", Category: "Dairy", Par: 8, DisplayOrder: 3},
	{Name: "Half & Half", Category: "Dairy", Par: 6, DisplayOrder: 4},
	{Name: "Oat Milk", Category: "Alternative", Par: 6, DisplayOrder: 5},
	{Name: "Almond Milk", Category: "Alternative", Par: 4, DisplayOrder: 6},
}

func main() {
	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPassword == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD is required")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	var biz models.Business
	err := db.WithContext(ctx).First(&biz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created, cerr := models.CreateBusiness(ctx, &models.NewBusiness{
			Name:     getenvOr("SEED_BUSINESS_NAME", "Corner Store"),
			Email:    os.Getenv("SEED_BUSINESS_EMAIL"),
			Timezone: getenvOr("SEED_BUSINESS_TIMEZONE", "UTC"),
		})
		if cerr != nil {
			fmt.Fprintf(os.Stderr, "failed to create business: %v\n", cerr)
			os.Exit(1)
		}
		biz = *created
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup business: %v\n", err)
		os.Exit(1)
	}

	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetUsernameInContext(ctx, adminUsername)
	ctx = utils.SetIsAdminInContext(ctx, true)

	var existing models.User
	err = db.WithContext(ctx).Where("username = ?", adminUsername).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if _, cerr := models.CreateUser(ctx, &models.NewUser{
			BusinessId: businessID,
			Username:   adminUsername,
			Name:       adminName,
			Password:   adminPassword,
			Role:       models.UserRoleAdmin,
		}); cerr != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", cerr)
			os.Exit(1)
		}
		fmt.Println("created admin user", adminUsername)
	case err != nil:
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	default:
		hashed, herr := utils.HashPassword(adminPassword)
		if herr != nil {
			fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", herr)
			os.Exit(1)
		}
		if uerr := db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
			"password":  hashed,
			"is_active": true,
			"role":      models.UserRoleAdmin,
		}).Error; uerr != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", uerr)
			os.Exit(1)
		}
		fmt.Println("updated admin user", adminUsername)
	}

	var itemCount int64
	if err := db.WithContext(ctx).Model(&models.CountItem{}).
		Where("business_id = ?", businessID).Count(&itemCount).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to count items: %v\n", err)
		os.Exit(1)
	}
	if itemCount == 0 {
		for i := range starterCatalog {
			if _, cerr := models.CreateCountItem(ctx, &starterCatalog[i]); cerr != nil {
				fmt.Fprintf(os.Stderr, "failed to seed item %q: %v\n", starterCatalog[i].Name, cerr)
				os.Exit(1)
			}
		}
		fmt.Printf("seeded %d catalog items\n", len(starterCatalog))
	}

	fmt.Println("seed complete for business", biz.Name, businessID)
}

func getenvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
