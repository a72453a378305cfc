package export

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"shopdash/internal/analytics"
)

var ErrNoSales = errors.New("no sales data available to export")

var csvHeader = []string{"Product ID", "Product Title", "Quantity Sold", "Total Revenue"}

// NumericID returns the part of a Shopify gid after the last slash.
func NumericID(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 {
		return gid[i+1:]
	}
	return gid
}

func ExportFilename(now time.Time) string {
	return "product_sales_summary_" + now.Format("20060102_150405") + ".csv"
}

// WriteProductSalesCSV writes one row per product in the given order.
func WriteProductSalesCSV(w io.Writer, sales []analytics.ProductSale) error {
	if len(sales) == 0 {
		return ErrNoSales
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range sales {
		rec := []string{
			NumericID(s.ProductID),
			s.ProductTitle,
			strconv.Itoa(s.TotalQuantitySold),
			s.TotalRevenue.StringFixed(2),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
