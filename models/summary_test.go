package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/counts_backend/models"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
)

func TestDeliveryPairDerivation(t *testing.T) {
	cases := []struct {
		name          string
		method        models.DeliveryMethod
		value         *int
		back          *int
		wantDelivered *int
		wantCurrent   *int
	}{
		{
			name:          "current entered, delivered derived",
			method:        models.DeliveryMethodCount,
			value:         intPtr(9),
			back:          intPtr(2),
			wantDelivered: intPtr(7),
			wantCurrent:   intPtr(9),
		},
		{
			name:          "delivered entered, current derived",
			method:        models.DeliveryMethodDelivered,
			value:         intPtr(7),
			back:          intPtr(2),
			wantDelivered: intPtr(7),
			wantCurrent:   intPtr(9),
		},
		{
			name:          "current below back clamps delivered at zero",
			method:        models.DeliveryMethodCount,
			value:         intPtr(1),
			back:          intPtr(5),
			wantDelivered: intPtr(0),
			wantCurrent:   intPtr(1),
		},
		{
			name:          "null back reads as zero",
			method:        models.DeliveryMethodCount,
			value:         intPtr(4),
			back:          nil,
			wantDelivered: intPtr(4),
			wantCurrent:   intPtr(4),
		},
		{
			name:          "no delivery value stays null",
			method:        models.DeliveryMethodCount,
			value:         nil,
			back:          intPtr(2),
			wantDelivered: nil,
			wantCurrent:   nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := models.MilkEntry{
				DeliveryMethod: tc.method,
				DeliveryValue:  tc.value,
				BackCount:      tc.back,
			}
			checkPtr(t, "delivered", entry.DeliveredOf(), tc.wantDelivered)
			checkPtr(t, "current", entry.CurrentOf(), tc.wantCurrent)
		})
	}
}

func checkPtr(t *testing.T, label string, got, want *int) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("%s = %v, want %v", label, fmtPtr(got), fmtPtr(want))
	}
	if got != nil && *got != *want {
		t.Fatalf("%s = %d, want %d", label, *got, *want)
	}
}

func fmtPtr(v *int) interface{} {
	if v == nil {
		return "nil"
	}
	return *v
}

func TestBuildMilkSummaryJoinsCatalog(t *testing.T) {
	items := []*models.CountItem{
		{ID: 1, Name: "Whole", Par: 10, DisplayOrder: 1, IsActive: utils.NewTrue()},
		{ID: 2, Name: "Skim", Par: 6, DisplayOrder: 2, IsActive: utils.NewTrue()},
	}
	entries := []*models.MilkEntry{
		{ItemId: 1, FrontCount: intPtr(4), BackCount: intPtr(2),
			DeliveryMethod: models.DeliveryMethodCount, DeliveryValue: intPtr(9), OnOrderCount: intPtr(0)},
		// Item 99 left the catalog; its entry must be dropped.
		{ItemId: 99, FrontCount: intPtr(1)},
	}

	summary := models.BuildMilkSummary(items, entries)
	if len(summary) != 2 {
		t.Fatalf("summary rows = %d, want 2", len(summary))
	}
	if summary[0].Total != 13 || summary[0].OrderAmount != 0 {
		t.Fatalf("whole total/order = %d/%d, want 13/0", summary[0].Total, summary[0].OrderAmount)
	}
	// No entry at all: all-NULL values, total 0, order = par.
	if summary[1].FrontCount != nil || summary[1].Total != 0 || summary[1].OrderAmount != 6 {
		t.Fatalf("skim = front %v total %d order %d, want nil/0/6",
			summary[1].FrontCount, summary[1].Total, summary[1].OrderAmount)
	}
}

func TestBuildRestockSummaryPullAmounts(t *testing.T) {
	items := []*models.CountItem{
		{ID: 1, Par: 6, DisplayOrder: 1, IsActive: utils.NewTrue()},
		{ID: 2, Par: 4, DisplayOrder: 2, IsActive: utils.NewTrue()},
		{ID: 3, Par: 3, DisplayOrder: 3, IsActive: utils.NewTrue()},
	}
	entries := []*models.RestockEntry{
		{ItemId: 1, CountedValue: intPtr(2), Pulled: utils.NewTrue()},
		{ItemId: 2, CountedValue: intPtr(9)},
	}

	summary := models.BuildRestockSummary(items, entries)
	if summary[0].PullAmount != 4 || !summary[0].Pulled {
		t.Fatalf("item 1 = pull %d pulled %v, want 4/true", summary[0].PullAmount, summary[0].Pulled)
	}
	// Counted above par never pulls negative.
	if summary[1].PullAmount != 0 {
		t.Fatalf("item 2 pull = %d, want 0", summary[1].PullAmount)
	}
	// Never counted reads as zero for the pull list.
	if summary[2].PullAmount != 3 {
		t.Fatalf("item 3 pull = %d, want 3", summary[2].PullAmount)
	}
}
