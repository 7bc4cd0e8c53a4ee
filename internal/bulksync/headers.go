package bulksync

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical column names.
const (
	ColCode           = "CODIGO INTERNO"
	ColOriginalCode   = "CODIGO ORIGINAL"
	ColDescription    = "DESCRIPCION"
	ColApplication    = "APLICACION"
	ColStock          = "STOCK"
	ColRetailPrice    = "PRECIO PUBLICO"
	ColWholesalePrice = "PRECIO MAYORISTA"
	ColBrand          = "MARCA"
	ColFamily         = "FAMILIA"
	ColCategory       = "CATEGORIA"
	ColOffer          = "OFERTA"
	ColNew            = "NOVEDAD"
	ColDeactivate     = "DESACTIVAR"
)

// CanonicalColumns lists the vocabulary in template order.
var CanonicalColumns = []string{
	ColCode, ColOriginalCode, ColDescription, ColApplication, ColStock, ColRetailPrice,
	ColWholesalePrice, ColBrand, ColFamily, ColCategory, ColOffer, ColNew, ColDeactivate,
}

// aliases maps normalised supplier spellings to canonical names.
var aliases = map[string]string{
	"CODIGO":            ColCode,
	"COD INTERNO":       ColCode,
	"COD ORIGINAL":      ColOriginalCode,
	"CODIGO FABRICANTE": ColOriginalCode,
	"PRECIO CON IVA":    ColRetailPrice,
	"PRECIO VENTA":      ColRetailPrice,
	"PRECIO SIN IVA":    ColWholesalePrice,
	"RUBRO":             ColFamily,
	"BAJA":              ColDeactivate,
}

// NormalizeHeader strips diacritics, upper-cases and collapses whitespace.
func NormalizeHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}

// Canonical resolves a raw header to its canonical column name, or "" if unknown.
func Canonical(raw string) string {
	h := NormalizeHeader(raw)
	if h == "" {
		return ""
	}
	if c, ok := aliases[h]; ok {
		return c
	}
	for _, c := range CanonicalColumns {
		if c == h {
			return c
		}
	}
	return ""
}

// RequiredColumns returns the canonical columns a worksheet must carry in mode.
func RequiredColumns(mode Mode) []string {
	if mode == ModeDelete {
		return []string{ColCode}
	}
	return []string{ColCode, ColRetailPrice, ColWholesalePrice}
}

// Columns maps canonical column names to zero-based column indexes.
type Columns map[string]int

// ResolveColumns indexes a header row. The first occurrence of a column wins.
func ResolveColumns(header []string) Columns {
	cols := make(Columns, len(header))
	for i, raw := range header {
		c := Canonical(raw)
		if c == "" {
			continue
		}
		if _, seen := cols[c]; !seen {
			cols[c] = i
		}
	}
	return cols
}

// Check returns a MissingColumnsError naming every required column absent from cols.
func (cols Columns) Check(sheet string, mode Mode) error {
	var missing []string
	for _, c := range RequiredColumns(mode) {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Sheet: sheet, Columns: missing}
	}
	return nil
}
