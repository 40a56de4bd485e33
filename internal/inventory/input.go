package inventory

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

// Upload is one image payload. Filename is the client's name for the file and
// only contributes its extension to the stored key.
type Upload struct {
	Filename string
	Data     []byte
}

// ItemInput carries the editable fields of an item.
type ItemInput struct {
	Name     string
	Wattage  decimal.Decimal
	Quantity int
	Model    string
	Images   []Upload
}

// Filenames is a list that distinguishes "not sent" from "sent empty".
type Filenames struct {
	Values  []string
	Present bool
}

// Names returns a present list holding values.
func Names(values ...string) Filenames {
	return Filenames{Values: values, Present: true}
}

// UpdateInput is an ItemInput plus the image lists that decide which current
// images survive.
//
// When ExistingImages is absent every current image is removed, the same as
// sending it empty. Clients that want to keep images must list them.
type UpdateInput struct {
	ItemInput
	ExistingImages Filenames
	DeletedImages  Filenames
}

// Sort keys and directions accepted by List.
const (
	SortWattage    = "wattage"
	SortTotalPower = "total_power"
	SortCreatedAt  = "created_at"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListQuery narrows and orders List.
type ListQuery struct {
	Search       string
	Model        string
	SortBy       string
	SortOrder    string
	ShowArchived bool
}

func (in ItemInput) fields(minQuantity int) (store.ItemFields, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return store.ItemFields{}, validationf("name is required")
	}
	if err := model.CheckWattageSize(in.Wattage); err != nil {
		return store.ItemFields{}, validationf("%v", err)
	}
	if !in.Wattage.IsPositive() {
		return store.ItemFields{}, validationf("wattage must be greater than 0")
	}
	if in.Quantity < minQuantity {
		return store.ItemFields{}, validationf("quantity must be at least %d", minQuantity)
	}
	if len(in.Images) > model.MaxImages {
		return store.ItemFields{}, validationf("at most %d images can be uploaded at once", model.MaxImages)
	}
	for i, img := range in.Images {
		if len(img.Data) == 0 {
			return store.ItemFields{}, validationf("image %d (%s) is empty", i+1, img.Filename)
		}
	}
	return store.ItemFields{
		Name:     name,
		Wattage:  in.Wattage,
		Quantity: in.Quantity,
		Model:    strings.TrimSpace(in.Model),
	}, nil
}

// normalized fills in the default direction and rejects unknown values.
func (q ListQuery) normalized() (ListQuery, error) {
	switch q.SortBy {
	case "", SortWattage, SortTotalPower, SortCreatedAt:
	default:
		return q, validationf("unknown sort key %q", q.SortBy)
	}
	switch q.SortOrder {
	case "":
		if q.SortBy != "" {
			q.SortOrder = OrderAsc
		}
	case OrderAsc, OrderDesc:
	default:
		return q, validationf("unknown sort order %q", q.SortOrder)
	}
	if q.SortBy == "" && q.SortOrder != "" {
		q.SortBy = SortCreatedAt
	}
	return q, nil
}

func (q ListQuery) String() string {
	return fmt.Sprintf("search=%q model=%q sort=%s %s archived=%t", q.Search, q.Model, q.SortBy, q.SortOrder, q.ShowArchived)
}
