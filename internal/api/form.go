package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/erazemk/porabnik/internal/imaging"
	"github.com/erazemk/porabnik/internal/inventory"
	"github.com/erazemk/porabnik/internal/model"
)

// Form field names of the item endpoints.
const (
	fieldName           = "name"
	fieldWattage        = "wattage"
	fieldQuantity       = "quantity"
	fieldModel          = "item_model"
	fieldImages         = "images"
	fieldExistingImages = "existing_images"
	fieldDeletedImages  = "deleted_images"
)

// maxFormBytes bounds a whole item request: every image at its limit plus
// room for the text fields.
const maxFormBytes = model.MaxImages*imaging.MaxBytes + 1<<20

// maxWattageLen bounds the raw wattage field before it is parsed.
const maxWattageLen = 32

// parseItemForm reads a multipart or urlencoded item form. Uploaded images
// are normalized before they reach the engine.
func parseItemForm(w http.ResponseWriter, r *http.Request) (inventory.ItemInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return inventory.ItemInput{}, fmt.Errorf("request larger than %s", humanize.IBytes(uint64(tooLarge.Limit)))
		}
		return inventory.ItemInput{}, fmt.Errorf("invalid form: %w", err)
	}

	in := inventory.ItemInput{
		Name:  r.PostFormValue(fieldName),
		Model: r.PostFormValue(fieldModel),
	}

	wattage := strings.TrimSpace(r.PostFormValue(fieldWattage))
	if wattage == "" {
		return in, errors.New("wattage is required")
	}
	if len(wattage) > maxWattageLen {
		return in, fmt.Errorf("wattage longer than %d characters", maxWattageLen)
	}
	watts, err := decimal.NewFromString(wattage)
	if err != nil {
		return in, fmt.Errorf("invalid wattage %q", wattage)
	}
	in.Wattage = watts

	quantity := strings.TrimSpace(r.PostFormValue(fieldQuantity))
	if quantity == "" {
		return in, errors.New("quantity is required")
	}
	if in.Quantity, err = strconv.Atoi(quantity); err != nil {
		return in, fmt.Errorf("invalid quantity %q", quantity)
	}

	if r.MultipartForm == nil {
		return in, nil
	}
	files := r.MultipartForm.File[fieldImages]
	if len(files) > model.MaxImages {
		return in, fmt.Errorf("at most %d images can be uploaded at once", model.MaxImages)
	}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return in, fmt.Errorf("reading %s: %w", fh.Filename, err)
		}
		res, err := imaging.Normalize(f)
		f.Close()
		if err != nil {
			return in, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		base := strings.TrimSuffix(filepath.Base(fh.Filename), filepath.Ext(fh.Filename))
		in.Images = append(in.Images, inventory.Upload{Filename: base + res.Ext, Data: res.Data})
	}
	return in, nil
}

// formFilenames reads a filename list that may be sent as repeated fields,
// as a JSON array string, or as both. A field that is not sent at all is
// reported as absent.
func formFilenames(r *http.Request, field string) (inventory.Filenames, error) {
	values, ok := r.PostForm[field]
	if !ok {
		values, ok = r.PostForm[field+"[]"]
	}
	if !ok {
		return inventory.Filenames{}, nil
	}

	list := inventory.Names()
	for _, v := range values {
		v = strings.TrimSpace(v)
		switch {
		case v == "":
		case strings.HasPrefix(v, "["):
			var names []string
			if err := json.Unmarshal([]byte(v), &names); err != nil {
				return list, fmt.Errorf("invalid %s: %w", field, err)
			}
			list.Values = append(list.Values, names...)
		default:
			list.Values = append(list.Values, v)
		}
	}
	return list, nil
}
