package enums

// PriceSource records which pricing input was authoritative for a line.
type PriceSource string

const (
	PriceSourceCatalog  PriceSource = "catalog"
	PriceSourceSnapshot PriceSource = "snapshot"
)

// String implements fmt.Stringer.
func (p PriceSource) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PriceSource.
func (p PriceSource) IsValid() bool {
	return p == PriceSourceCatalog || p == PriceSourceSnapshot
}
