package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/models"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
)

func TestRestockSessionDoubleStartConflicts(t *testing.T) {
	setupTestDB(t)
	ctx := newTestContext(t)
	createTestItems(t, ctx, 6, 4)

	first, err := models.StartRestockSession(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("StartRestockSession: %v", err)
	}
	if first.Status != models.RestockStatusCounting {
		t.Fatalf("new session status = %s, want %s", first.Status, models.RestockStatusCounting)
	}

	if _, err := models.StartRestockSession(ctx, "2026-03-02"); !utils.IsConflictError(err) {
		t.Fatalf("second start = %v, want conflict", err)
	}

	// The in-flight session is picked back up through the active fetch.
	resumed, err := models.GetActiveRestockSession(ctx)
	if err != nil {
		t.Fatalf("GetActiveRestockSession: %v", err)
	}
	if resumed.ID != first.ID {
		t.Fatalf("active session = %d, want %d", resumed.ID, first.ID)
	}
}

func TestRestockGateReportsViolatorsInDisplayOrder(t *testing.T) {
	setupTestDB(t)
	ctx := newTestContext(t)
	items := createTestItems(t, ctx, 6, 4, 8, 2, 5)

	session, err := models.StartRestockSession(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("StartRestockSession: %v", err)
	}

	// Count everything except items 2 and 4. An explicit zero on item 5
	// satisfies the gate; NULL does not.
	for _, i := range []int{0, 2} {
		if _, err := models.UpdateRestockCount(ctx, session.ID, items[i].ID, intPtr(3)); err != nil {
			t.Fatalf("count item %d: %v", i, err)
		}
	}
	if _, err := models.UpdateRestockCount(ctx, session.ID, items[4].ID, intPtr(0)); err != nil {
		t.Fatalf("count item 5: %v", err)
	}

	_, err = models.BeginPulling(ctx, session.ID, false)
	var verr *utils.ValidationError
	if !asValidation(err, &verr) {
		t.Fatalf("BeginPulling = %v, want validation error", err)
	}
	want := []int{items[1].ID, items[3].ID}
	if len(verr.ItemIds) != len(want) || verr.ItemIds[0] != want[0] || verr.ItemIds[1] != want[1] {
		t.Fatalf("violators = %v, want %v", verr.ItemIds, want)
	}

	// The failed gate must not have advanced the session.
	got, err := models.GetActiveRestockSession(ctx)
	if err != nil {
		t.Fatalf("GetActiveRestockSession: %v", err)
	}
	if got.Status != models.RestockStatusCounting {
		t.Fatalf("status after failed gate = %s, want %s", got.Status, models.RestockStatusCounting)
	}
}

func TestRestockGateAssignZero(t *testing.T) {
	setupTestDB(t)
	ctx := newTestContext(t)
	items := createTestItems(t, ctx, 6, 4, 2)

	session, err := models.StartRestockSession(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("StartRestockSession: %v", err)
	}
	if _, err := models.UpdateRestockCount(ctx, session.ID, items[0].ID, intPtr(2)); err != nil {
		t.Fatalf("count item 1: %v", err)
	}
	// Item 3 is fully stocked; it must not appear on the pull list.
	if _, err := models.UpdateRestockCount(ctx, session.ID, items[2].ID, intPtr(5)); err != nil {
		t.Fatalf("count item 3: %v", err)
	}

	got, err := models.BeginPulling(ctx, session.ID, true)
	if err != nil {
		t.Fatalf("BeginPulling assignZero: %v", err)
	}
	if got.Status != models.RestockStatusPulling {
		t.Fatalf("status = %s, want %s", got.Status, models.RestockStatusPulling)
	}

	// The uncounted item got an explicit zero, so its pull amount is its
	// full par.
	pullList, err := models.GetRestockPullList(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetRestockPullList: %v", err)
	}
	if len(pullList) != 2 {
		t.Fatalf("pull list has %d items, want 2 (fully stocked item excluded)", len(pullList))
	}
	if pullList[1].CountedValue == nil || *pullList[1].CountedValue != 0 {
		t.Fatalf("item 2 counted = %v, want assigned 0", pullList[1].CountedValue)
	}
	if pullList[1].PullAmount != 4 {
		t.Fatalf("item 2 pull = %d, want 4", pullList[1].PullAmount)
	}
	if pullList[0].PullAmount != 4 {
		t.Fatalf("item 1 pull = %d, want 4 (par 6, counted 2)", pullList[0].PullAmount)
	}
}

func TestRestockPhaseFreezesCounting(t *testing.T) {
	setupTestDB(t)
	ctx := newTestContext(t)
	items := createTestItems(t, ctx, 6)

	session, err := models.StartRestockSession(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("StartRestockSession: %v", err)
	}

	// Pulled toggles are meaningless before pulling starts.
	_, err = models.ToggleRestockPulled(ctx, session.ID, items[0].ID, true)
	if !utils.IsConflictError(err) {
		t.Fatalf("toggle during counting = %v, want conflict", err)
	}

	if _, err := models.BeginPulling(ctx, session.ID, true); err != nil {
		t.Fatalf("BeginPulling: %v", err)
	}

	// And counting edits are rejected once pulling began.
	_, err = models.UpdateRestockCount(ctx, session.ID, items[0].ID, intPtr(5))
	if !utils.IsConflictError(err) {
		t.Fatalf("count during pulling = %v, want conflict", err)
	}

	entry, err := models.ToggleRestockPulled(ctx, session.ID, items[0].ID, true)
	if err != nil {
		t.Fatalf("toggle during pulling: %v", err)
	}
	if entry.Pulled == nil || !*entry.Pulled {
		t.Fatal("pulled flag not set")
	}
}

func TestRestockCompletionPurges(t *testing.T) {
	setupTestDB(t)
	ctx := newTestContext(t)
	items := createTestItems(t, ctx, 6, 4)

	session, err := models.StartRestockSession(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("StartRestockSession: %v", err)
	}

	// Completing from the counting phase is invalid.
	_, err = models.CompleteRestockSession(ctx, session.ID)
	if !utils.IsValidationError(err) {
		t.Fatalf("complete during counting = %v, want validation error", err)
	}

	if _, err := models.UpdateRestockCount(ctx, session.ID, items[0].ID, intPtr(2)); err != nil {
		t.Fatalf("count: %v", err)
	}
	if _, err := models.BeginPulling(ctx, session.ID, true); err != nil {
		t.Fatalf("BeginPulling: %v", err)
	}
	if _, err := models.ToggleRestockPulled(ctx, session.ID, items[0].ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	summary, err := models.CompleteRestockSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("CompleteRestockSession: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("summary rows = %d, want 2", len(summary))
	}
	if summary[0].PullAmount != 4 || !summary[0].Pulled {
		t.Fatalf("item 1 summary = pull %d pulled %v, want 4/true", summary[0].PullAmount, summary[0].Pulled)
	}

	// Purge policy: the session and its ledger are gone...
	db := config.GetDB()
	var sessions, entries int64
	db.Model(&models.RestockSession{}).Count(&sessions)
	db.Model(&models.RestockEntry{}).Count(&entries)
	if sessions != 0 || entries != 0 {
		t.Fatalf("after purge: %d sessions, %d entries; want 0/0", sessions, entries)
	}
	if _, err := models.GetActiveRestockSession(ctx); !utils.IsNotFoundError(err) {
		t.Fatalf("GetActiveRestockSession after purge = %v, want not found", err)
	}

	// ...but the outbox event survives in the same transaction's output.
	var events []models.SessionEventRecord
	if err := db.Find(&events).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	if len(events) != 1 || events[0].Action != models.SessionEventRestockCompleted {
		t.Fatalf("outbox rows = %v, want one %s", len(events), models.SessionEventRestockCompleted)
	}
}

func TestRestockSessionsAreUserScoped(t *testing.T) {
	setupTestDB(t)
	ctx := newTestContext(t)
	createTestItems(t, ctx, 6)

	session, err := models.StartRestockSession(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("StartRestockSession: %v", err)
	}

	otherCtx := utils.SetUserIdInContext(ctx, 2)
	otherCtx = utils.SetUserNameInContext(otherCtx, "Other")

	other, err := models.StartRestockSession(otherCtx, "2026-03-02")
	if err != nil {
		t.Fatalf("StartRestockSession other user: %v", err)
	}
	if other.ID == session.ID {
		t.Fatal("two users share one restock session; want per-user sessions")
	}

	// One user cannot touch another's session.
	if _, err := models.BeginPulling(otherCtx, session.ID, true); !utils.IsNotFoundError(err) {
		t.Fatalf("cross-user BeginPulling = %v, want not found", err)
	}
}
