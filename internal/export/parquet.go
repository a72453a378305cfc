package export

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shopdash/internal/analytics"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
)

// ProductSaleRow is the Parquet layout of one product sales row.
type ProductSaleRow struct {
	ProductID    string  `parquet:"name=product_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ProductTitle string  `parquet:"name=product_title, type=BYTE_ARRAY, convertedtype=UTF8"`
	QuantitySold int64   `parquet:"name=quantity_sold, type=INT64"`
	TotalRevenue float64 `parquet:"name=total_revenue, type=DOUBLE"`
	RevenueText  string  `parquet:"name=total_revenue_text, type=BYTE_ARRAY, convertedtype=UTF8"`
	WindowStart  string  `parquet:"name=window_start, type=BYTE_ARRAY, convertedtype=UTF8"` // YYYY-MM-DD or empty
	WindowEnd    string  `parquet:"name=window_end, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func ParquetFilename(now time.Time) string {
	return "product_sales_summary_" + now.Format("20060102_150405") + "_" + randHex(4) + ".parquet"
}

func ProductSaleRows(sales []analytics.ProductSale, windowStart, windowEnd string) []ProductSaleRow {
	rows := make([]ProductSaleRow, 0, len(sales))
	for _, s := range sales {
		rows = append(rows, ProductSaleRow{
			ProductID:    NumericID(s.ProductID),
			ProductTitle: s.ProductTitle,
			QuantitySold: int64(s.TotalQuantitySold),
			TotalRevenue: s.TotalRevenue.InexactFloat64(),
			RevenueText:  s.TotalRevenue.StringFixed(2),
			WindowStart:  windowStart,
			WindowEnd:    windowEnd,
		})
	}
	return rows
}

// ProductSalesParquet encodes rows to a Parquet file and returns its bytes.
// parquet-go writes through a file source, so a temp file is used.
func ProductSalesParquet(rows []ProductSaleRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoSales
	}

	localPath := filepath.Join(os.TempDir(), "product_sales_"+randHex(8)+".parquet")
	defer func() { _ = os.Remove(localPath) }()

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return nil, fmt.Errorf("parquet file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(ProductSaleRow), 1)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.PageSize = 8 * 1024
	pw.CompressionType = 0 // no snappy

	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return nil, fmt.Errorf("parquet write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read parquet tmp: %w", err)
	}
	return data, nil
}

func ensureTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
