package checkout

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freshora-backend/internal/pricing"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
)

// MetadataItem is the compact per-line record carried in gateway session
// metadata. Snapshot lines keep their name and price so the webhook can
// re-price them without the original request.
type MetadataItem struct {
	Product  string           `json:"product"`
	Quantity int              `json:"quantity"`
	Name     string           `json:"name,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// EncodeItems serializes resolved lines for session metadata.
func EncodeItems(lines []pricing.ResolvedLine) (string, error) {
	items := make([]MetadataItem, 0, len(lines))
	for _, line := range lines {
		item := MetadataItem{Product: line.ProductRef, Quantity: line.Quantity}
		if line.Source == enums.PriceSourceSnapshot {
			price := line.UnitPrice
			item.Name = line.Name
			item.Price = &price
		}
		items = append(items, item)
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeItems parses session metadata back into cart lines.
func DecodeItems(raw string) ([]pricing.Line, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var items []MetadataItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		line := pricing.Line{ProductRef: item.Product, Quantity: item.Quantity}
		if item.Price != nil {
			line.Snapshot = &pricing.Snapshot{Name: item.Name, UnitPrice: *item.Price}
		}
		lines = append(lines, line)
	}
	return lines, nil
}
