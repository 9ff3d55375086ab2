package models

// MilkItemSummary is the derived per-item view of a milk count session.
// Total and OrderAmount treat NULL inputs as zero; the nullable fields keep
// the raw phase values so clients can still tell "never counted" apart
// from an explicit zero.
type MilkItemSummary struct {
	ItemId       int    `json:"itemId"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Icon         string `json:"icon"`
	DisplayOrder int    `json:"displayOrder"`
	Par          int    `json:"par"`
	FrontCount   *int   `json:"frontCount"`
	BackCount    *int   `json:"backCount"`
	Delivered    *int   `json:"delivered"`
	CurrentCount *int   `json:"currentCount"`
	OnOrderCount *int   `json:"onOrderCount"`
	Total        int    `json:"total"`
	OrderAmount  int    `json:"orderAmount"`
}

func zeroIfNil(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// milkTotal is the stock on hand plus what is already inbound:
// front + back + delivered + on order, with NULL read as zero.
func milkTotal(front, back, delivered, onOrder *int) int {
	return zeroIfNil(front) + zeroIfNil(back) + zeroIfNil(delivered) + zeroIfNil(onOrder)
}

// orderAmount is how much to order to reach par, never negative.
func orderAmount(par, total int) int {
	if total >= par {
		return 0
	}
	return par - total
}

// BuildMilkSummary joins the catalog with a session's ledger and derives
// the totals. Items without an entry appear with all-NULL values; entries
// whose item left the catalog are dropped. Output follows display order.
func BuildMilkSummary(items []*CountItem, entries []*MilkEntry) []*MilkItemSummary {
	byItem := make(map[int]*MilkEntry, len(entries))
	for _, entry := range entries {
		byItem[entry.ItemId] = entry
	}

	summaries := make([]*MilkItemSummary, 0, len(items))
	for _, item := range items {
		summary := &MilkItemSummary{
			ItemId:       item.ID,
			Name:         item.Name,
			Category:     item.Category,
			Icon:         item.Icon,
			DisplayOrder: item.DisplayOrder,
			Par:          item.Par,
		}
		if entry, ok := byItem[item.ID]; ok {
			summary.FrontCount = entry.FrontCount
			summary.BackCount = entry.BackCount
			summary.Delivered = entry.DeliveredOf()
			summary.CurrentCount = entry.CurrentOf()
			summary.OnOrderCount = entry.OnOrderCount
		}
		summary.Total = milkTotal(summary.FrontCount, summary.BackCount, summary.Delivered, summary.OnOrderCount)
		summary.OrderAmount = orderAmount(item.Par, summary.Total)
		summaries = append(summaries, summary)
	}
	return summaries
}

// RestockItemSummary is the derived per-item view of a display restock
// session during the pulling phase.
type RestockItemSummary struct {
	ItemId       int    `json:"itemId"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Icon         string `json:"icon"`
	DisplayOrder int    `json:"displayOrder"`
	Par          int    `json:"par"`
	CountedValue *int   `json:"countedValue"`
	PullAmount   int    `json:"pullAmount"`
	Pulled       bool   `json:"pulled"`
}

// BuildRestockSummary derives the pull list: for each item, how many units
// to move from the back to reach par on the display. Output follows
// display order.
func BuildRestockSummary(items []*CountItem, entries []*RestockEntry) []*RestockItemSummary {
	byItem := make(map[int]*RestockEntry, len(entries))
	for _, entry := range entries {
		byItem[entry.ItemId] = entry
	}

	summaries := make([]*RestockItemSummary, 0, len(items))
	for _, item := range items {
		summary := &RestockItemSummary{
			ItemId:       item.ID,
			Name:         item.Name,
			Category:     item.Category,
			Icon:         item.Icon,
			DisplayOrder: item.DisplayOrder,
			Par:          item.Par,
		}
		if entry, ok := byItem[item.ID]; ok {
			summary.CountedValue = entry.CountedValue
			summary.Pulled = entry.Pulled != nil && *entry.Pulled
		}
		summary.PullAmount = orderAmount(item.Par, zeroIfNil(summary.CountedValue))
		summaries = append(summaries, summary)
	}
	return summaries
}
