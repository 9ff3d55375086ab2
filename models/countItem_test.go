package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/counts_backend/models"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
)

func TestCountItemParBounds(t *testing.T) {
	setupTestDB(t)
	ctx := newTestContext(t)

	_, err := models.CreateCountItem(ctx, &models.NewCountItem{
		Name: "Whole", Par: models.MaxMeasurement + 1, DisplayOrder: 1,
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("par above max = %v, want validation error", err)
	}
	_, err = models.CreateCountItem(ctx, &models.NewCountItem{
		Name: "Whole", Par: -1, DisplayOrder: 1,
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("negative par = %v, want validation error", err)
	}
	if _, err := models.CreateCountItem(ctx, &models.NewCountItem{
		Name: "Whole", Par: models.MaxMeasurement, DisplayOrder: 1,
	}); err != nil {
		t.Fatalf("par at max: %v", err)
	}
}

func TestCountItemUniqueness(t *testing.T) {
	setupTestDB(t)
	ctx := newTestContext(t)

	if _, err := models.CreateCountItem(ctx, &models.NewCountItem{
		Name: "Whole", Par: 5, DisplayOrder: 1,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := models.CreateCountItem(ctx, &models.NewCountItem{
		Name: "Whole", Par: 3, DisplayOrder: 2,
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("duplicate name = %v, want validation error", err)
	}
	_, err = models.CreateCountItem(ctx, &models.NewCountItem{
		Name: "Skim", Par: 3, DisplayOrder: 1,
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("duplicate display order = %v, want validation error", err)
	}
}

func TestDeactivatedItemsLeaveNewSessions(t *testing.T) {
	setupTestDB(t)
	ctx := newTestContext(t)
	items := createTestItems(t, ctx, 5, 5)

	if _, err := models.ToggleActiveCountItem(ctx, items[1].ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	session, err := models.StartMilkSession(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("StartMilkSession: %v", err)
	}
	if len(session.Entries) != 1 || session.Entries[0].ItemId != items[0].ID {
		t.Fatalf("entries = %d, want only the active item", len(session.Entries))
	}

	summary, err := models.GetMilkSessionSummary(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetMilkSessionSummary: %v", err)
	}
	if len(summary) != 1 {
		t.Fatalf("summary rows = %d, want 1", len(summary))
	}
}
