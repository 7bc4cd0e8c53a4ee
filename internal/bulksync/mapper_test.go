package bulksync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1.234,56", 1234.56},
		{"1,234.56", 1234.56},
		{"1234,56", 1234.56},
		{"1234.56", 1234.56},
		{"$ 1 500", 1500},
		{" 42 ", 42},
		{"-3,5", -3.5},
	}
	for _, tc := range cases {
		got := ParseNumber(tc.in)
		require.NotNil(t, got, tc.in)
		require.InDelta(t, tc.want, *got, 1e-9, tc.in)
	}
	for _, in := range []string{"", "abc", "-", "..", "n/a"} {
		require.Nil(t, ParseNumber(in), in)
	}
}

func TestParseFlag(t *testing.T) {
	for _, in := range []string{"si", "SI", " Sí ", "true", "TRUE", "1"} {
		require.True(t, ParseFlag(in), in)
	}
	for _, in := range []string{"", "no", "0", "false", "x"} {
		require.False(t, ParseFlag(in), in)
	}
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "Filtro de aceite", CleanText("  Filtro \t de\n aceite "))
}

var mapperHeader = []string{
	"Código Interno", "Precio Público", "Precio Mayorista", "Stock", "Marca", "Familia",
	"Oferta", "Novedad", "Desactivar", "Descripción",
}

func mapperRow(values ...string) Row {
	row := Row{}
	for i, v := range values {
		row[i] = v
	}
	return row
}

func TestMapRowValid(t *testing.T) {
	cols := ResolveColumns(mapperHeader)
	c, rowErr := MapRow("Lista", 4, mapperRow(" FA-100 ", "1.234,50", "900", "7,6", "Bosch", "Filtros", "si", "no", "", "Filtro  aceite"), cols, ModeUpsert)
	require.Nil(t, rowErr)
	require.Equal(t, "FA-100", c.Code)
	require.Equal(t, "Lista", c.Sheet)
	require.Equal(t, 4, c.Row)
	require.InDelta(t, 1234.5, c.RetailPrice, 1e-9)
	require.NotNil(t, c.WholesalePrice)
	require.InDelta(t, 900, *c.WholesalePrice, 1e-9)
	require.Equal(t, int64(8), c.Stock)
	require.Equal(t, "Bosch", c.Brand)
	require.Equal(t, "Filtros", c.Family)
	require.Equal(t, "Filtro aceite", c.Description)
	require.True(t, c.IsOffer)
	require.False(t, c.IsNew)
	require.False(t, c.Deactivate)
}

func TestMapRowDefaults(t *testing.T) {
	cols := ResolveColumns(mapperHeader)
	c, rowErr := MapRow("Lista", 2, mapperRow("X1", "10"), cols, ModeUpsert)
	require.Nil(t, rowErr)
	require.Equal(t, int64(0), c.Stock)
	require.Nil(t, c.WholesalePrice)
}

func TestMapRowRejections(t *testing.T) {
	cols := ResolveColumns(mapperHeader)

	_, rowErr := MapRow("Lista", 2, mapperRow("   ", "10"), cols, ModeUpsert)
	require.NotNil(t, rowErr)
	require.Equal(t, ReasonMissingCode, rowErr.Code)
	require.Equal(t, 2, rowErr.Row)

	for _, price := range []string{"", "abc", "0", "-5"} {
		_, rowErr = MapRow("Lista", 3, mapperRow("X1", price), cols, ModeCreate)
		require.NotNil(t, rowErr, price)
		require.Equal(t, ReasonInvalidPrice, rowErr.Code)
		require.Equal(t, "Lista", rowErr.Sheet)
	}
}

func TestMapRowDeleteNeedsOnlyCode(t *testing.T) {
	cols := ResolveColumns([]string{"CODIGO INTERNO"})
	c, rowErr := MapRow("Bajas", 2, mapperRow("X1"), cols, ModeDelete)
	require.Nil(t, rowErr)
	require.Equal(t, "X1", c.Code)

	_, rowErr = MapRow("Bajas", 3, mapperRow(""), cols, ModeDelete)
	require.NotNil(t, rowErr)
	require.Equal(t, ReasonMissingCode, rowErr.Code)
}

func TestMapRowPriceBounds(t *testing.T) {
	cols := ResolveColumns(mapperHeader)

	for _, price := range []string{"0,004", "0.001", "1000000000000", "999999999999,999"} {
		_, rowErr := MapRow("Lista", 5, mapperRow("X1", price, "10"), cols, ModeUpsert)
		require.NotNil(t, rowErr, price)
		require.Equal(t, ReasonInvalidPrice, rowErr.Code, price)
		require.Equal(t, 5, rowErr.Row)
	}
	for _, wholesale := range []string{"0,004", "0", "-2", "1000000000000", "2.000.000.000.000,00"} {
		_, rowErr := MapRow("Lista", 6, mapperRow("X1", "10", wholesale), cols, ModeUpsert)
		require.NotNil(t, rowErr, wholesale)
		require.Equal(t, ReasonInvalidPrice, rowErr.Code, wholesale)
	}

	c, rowErr := MapRow("Lista", 7, mapperRow("X1", "0,005", "12,346"), cols, ModeUpsert)
	require.Nil(t, rowErr)
	require.InDelta(t, 0.01, c.RetailPrice, 1e-9)
	require.InDelta(t, 12.35, *c.WholesalePrice, 1e-9)

	c, rowErr = MapRow("Lista", 8, mapperRow("X1", "999.999.999.999,99"), cols, ModeUpsert)
	require.Nil(t, rowErr)
	require.InDelta(t, 999999999999.99, c.RetailPrice, 1e-3)
}

func TestMapRowStockOutOfRange(t *testing.T) {
	cols := ResolveColumns(mapperHeader)

	for _, stock := range []string{"99999999999999999999", "-99999999999999999999"} {
		_, rowErr := MapRow("Lista", 9, mapperRow("X1", "10", "", stock), cols, ModeUpsert)
		require.NotNil(t, rowErr, stock)
		require.Equal(t, ReasonInvalidStock, rowErr.Code)
	}

	c, rowErr := MapRow("Lista", 10, mapperRow("X1", "10", "", "-3"), cols, ModeUpsert)
	require.Nil(t, rowErr)
	require.Equal(t, int64(-3), c.Stock)
}
