package models

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Thumbnail   string  `json:"thumbnail"`
	Featured    bool    `json:"featured"`
}

type ProductColor struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type ProductSize struct {
	Name string `json:"name"`
}

// ProductImage points at a blob relative to products/{productID}/
type ProductImage struct {
	Path string `json:"path"`
}

type ProductCategory struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Featured bool     `json:"featured"`
	Products []string `json:"products,omitempty"`
}

// VariantField identifies one of the four independently loaded parts of a ProductVariants.
type VariantField uint8

const (
	FieldProduct VariantField = 1 << iota
	FieldColors
	FieldSizes
	FieldImages

	allVariantFields = FieldProduct | FieldColors | FieldSizes | FieldImages
)

func (f VariantField) String() string {
	switch f {
	case FieldProduct:
		return "product"
	case FieldColors:
		return "colors"
	case FieldSizes:
		return "sizes"
	case FieldImages:
		return "images"
	default:
		return "unknown"
	}
}

// VariantFields lists every field in a stable order.
var VariantFields = []VariantField{FieldProduct, FieldColors, FieldSizes, FieldImages}

// ProductVariants is an immutable snapshot of a product and its variant collections.
// Fields that have not been loaded, or failed to load, keep their zero value.
type ProductVariants struct {
	Product Product
	Colors  []ProductColor
	Sizes   []ProductSize
	Images  []ProductImage

	Loaded VariantField
	Failed map[VariantField]error
}

// Has reports whether f was loaded successfully.
func (v ProductVariants) Has(f VariantField) bool {
	return v.Loaded&f != 0
}

// Complete reports whether every field has either loaded or failed.
func (v ProductVariants) Complete() bool {
	done := v.Loaded
	for f := range v.Failed {
		done |= f
	}
	return done&allVariantFields == allVariantFields
}

// Count returns the number of fields loaded successfully.
func (v ProductVariants) Count() int {
	n := 0
	for _, f := range VariantFields {
		if v.Has(f) {
			n++
		}
	}
	return n
}
