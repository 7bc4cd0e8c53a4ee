package bulksync

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var affirmative = map[string]struct{}{
	"si":   {},
	"sí":   {},
	"true": {},
	"1":    {},
}

// CleanText collapses whitespace runs and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseFlag reports whether s belongs to the affirmative vocabulary.
func ParseFlag(s string) bool {
	_, ok := affirmative[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseNumber reads a number written with either comma or dot as decimal separator.
// When both appear, the one occurring last is the decimal separator and the other is
// dropped as grouping. A lone comma is a decimal separator. Unparseable input yields nil.
func ParseNumber(s string) *float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	v := b.String()
	if v == "" {
		return nil
	}
	comma := strings.LastIndex(v, ",")
	dot := strings.LastIndex(v, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			v = strings.ReplaceAll(v, ".", "")
			v = strings.ReplaceAll(v, ",", ".")
		} else {
			v = strings.ReplaceAll(v, ",", "")
		}
	case comma >= 0:
		v = strings.ReplaceAll(v, ",", ".")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Price columns are NUMERIC(14,2) with retail_price > 0.
const (
	minPrice = 0.01
	maxPrice = 1e12
)

// cents rounds v to two decimals and reports whether the result fits a price column.
func cents(v float64) (float64, bool) {
	r := math.Round(v*100) / 100
	return r, r >= minPrice && r < maxPrice
}

// units rounds v to a whole stock quantity and reports whether it fits a BIGINT.
func units(v float64) (int64, bool) {
	r := math.Round(v)
	if r < math.MinInt64 || r >= math.MaxInt64 {
		return 0, false
	}
	return int64(r), true
}

// Row is one worksheet row keyed by zero-based column index. Absent cells are "".
type Row map[int]string

func (r Row) get(cols Columns, name string) string {
	idx, ok := cols[name]
	if !ok {
		return ""
	}
	return r[idx]
}

// MapRow converts a raw row into a Candidate. Rows that must not reach the store
// come back as a *RowError instead.
func MapRow(sheet string, rowNum int, row Row, cols Columns, mode Mode) (c Candidate, rowErr *RowError) {
	defer func() {
		if p := recover(); p != nil {
			c = Candidate{}
			rowErr = &RowError{Sheet: sheet, Row: rowNum, Code: ReasonMappingError, Message: fmt.Sprint(p)}
		}
	}()

	c = Candidate{
		Sheet: sheet,
		Row:   rowNum,
		Code:  CleanText(row.get(cols, ColCode)),
	}
	if c.Code == "" {
		return Candidate{}, &RowError{Sheet: sheet, Row: rowNum, Code: ReasonMissingCode, Message: "internal code is empty"}
	}
	if mode == ModeDelete {
		return c, nil
	}

	rawPrice := row.get(cols, ColRetailPrice)
	price := ParseNumber(rawPrice)
	if price == nil || *price <= 0 {
		return Candidate{}, &RowError{
			Sheet:   sheet,
			Row:     rowNum,
			Code:    ReasonInvalidPrice,
			Message: fmt.Sprintf("retail price %q for %s is not a positive number", strings.TrimSpace(rawPrice), c.Code),
		}
	}
	retail, ok := cents(*price)
	if !ok {
		return Candidate{}, &RowError{
			Sheet:   sheet,
			Row:     rowNum,
			Code:    ReasonInvalidPrice,
			Message: fmt.Sprintf("retail price %q for %s is outside 0.01 to 999999999999.99", strings.TrimSpace(rawPrice), c.Code),
		}
	}
	c.RetailPrice = retail
	rawWholesale := row.get(cols, ColWholesalePrice)
	if wholesale := ParseNumber(rawWholesale); wholesale != nil {
		v, ok := cents(*wholesale)
		if !ok {
			return Candidate{}, &RowError{
				Sheet:   sheet,
				Row:     rowNum,
				Code:    ReasonInvalidPrice,
				Message: fmt.Sprintf("wholesale price %q for %s is outside 0.01 to 999999999999.99", strings.TrimSpace(rawWholesale), c.Code),
			}
		}
		c.WholesalePrice = &v
	}
	rawStock := row.get(cols, ColStock)
	if stock := ParseNumber(rawStock); stock != nil {
		n, ok := units(*stock)
		if !ok {
			return Candidate{}, &RowError{
				Sheet:   sheet,
				Row:     rowNum,
				Code:    ReasonInvalidStock,
				Message: fmt.Sprintf("stock %q for %s is out of range", strings.TrimSpace(rawStock), c.Code),
			}
		}
		c.Stock = n
	}
	c.OriginalCode = CleanText(row.get(cols, ColOriginalCode))
	c.Description = CleanText(row.get(cols, ColDescription))
	c.Application = CleanText(row.get(cols, ColApplication))
	c.Brand = CleanText(row.get(cols, ColBrand))
	c.Family = CleanText(row.get(cols, ColFamily))
	c.Category = CleanText(row.get(cols, ColCategory))
	c.IsOffer = ParseFlag(row.get(cols, ColOffer))
	c.IsNew = ParseFlag(row.get(cols, ColNew))
	c.Deactivate = ParseFlag(row.get(cols, ColDeactivate))
	return c, nil
}

// blank reports whether every cell of r is empty after trimming.
func (r Row) blank() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
