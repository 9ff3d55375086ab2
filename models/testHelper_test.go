package models_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/models"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB wires an isolated in-memory sqlite database into the
// package-global handle. Redis stays unconnected; the cache helpers
// degrade to misses.
func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	config.SetDB(db)
	models.MigrateTable()
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		config.SetDB(nil)
	})
}

// newTestContext creates a business and returns a context carrying the
// actor attribution the audit trail needs.
func newTestContext(t *testing.T) context.Context {
	t.Helper()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Corner Store",
		Email: "owner@corner.test",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	return utils.SetBusinessIdInContext(ctx, biz.ID.String())
}

// createTestItems seeds a small catalog with distinct pars and display
// orders; returns items in display order.
func createTestItems(t *testing.T, ctx context.Context, pars ...int) []*models.CountItem {
	t.Helper()

	items := make([]*models.CountItem, 0, len(pars))
	for i, par := range pars {
		item, err := models.CreateCountItem(ctx, &models.NewCountItem{
			Name:         fmt.Sprintf("Item %d", i+1),
			Category:     "Dairy",
			Par:          par,
			DisplayOrder: i + 1,
		})
		if err != nil {
			t.Fatalf("CreateCountItem %d: %v", i, err)
		}
		items = append(items, item)
	}
	return items
}

// sessionDay is a session date offset in whole days from today. Phase
// saves are rejected once the session's day has passed, so tests that
// exercise them must count against the real clock.
func sessionDay(offset int) string {
	return time.Now().UTC().AddDate(0, 0, offset).Format("2006-01-02")
}

func intPtr(v int) *int { return &v }

func asValidation(err error, target **utils.ValidationError) bool {
	return errors.As(err, target)
}

func phaseInputs(items []*models.CountItem, values ...*int) []models.PhaseEntryInput {
	inputs := make([]models.PhaseEntryInput, 0, len(values))
	for i, v := range values {
		inputs = append(inputs, models.PhaseEntryInput{ItemId: items[i].ID, Value: v})
	}
	return inputs
}
