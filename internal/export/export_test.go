package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shopdash/internal/analytics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func sales() []analytics.ProductSale {
	return []analytics.ProductSale{
		{ProductID: "gid://shopify/Product/111", ProductTitle: `Mug, "large"`, TotalQuantitySold: 3, TotalRevenue: decimal.RequireFromString("30.5")},
		{ProductID: "gid://shopify/Product/222", ProductTitle: "Tee", TotalQuantitySold: 1, TotalRevenue: decimal.RequireFromString("9.999")},
	}
}

func TestNumericID(t *testing.T) {
	assert.Equal(t, "111", NumericID("gid://shopify/Product/111"))
	assert.Equal(t, "plain", NumericID("plain"))
	assert.Equal(t, "", NumericID("trailing/"))
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2024, 7, 4, 9, 5, 3, 0, time.UTC)
	assert.Equal(t, "product_sales_summary_20240704_090503.csv", ExportFilename(now))
}

func TestWriteProductSalesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteProductSalesCSV(&buf, sales()))

	want := "Product ID,Product Title,Quantity Sold,Total Revenue\n" +
		"111,\"Mug, \"\"large\"\"\",3,30.50\n" +
		"222,Tee,1,10.00\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteProductSalesCSV_NoSales(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteProductSalesCSV(&buf, nil), ErrNoSales)
	assert.Zero(t, buf.Len())
}

func TestProductSalesParquet(t *testing.T) {
	rows := ProductSaleRows(sales(), "2024-01-01", "2024-01-31")
	require.Len(t, rows, 2)
	assert.Equal(t, "10.00", rows[1].RevenueText)

	data, err := ProductSalesParquet(rows)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))

	path := filepath.Join(t.TempDir(), "out.parquet")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(ProductSaleRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	assert.Equal(t, int64(2), pr.GetNumRows())
	got := make([]ProductSaleRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&got))
	assert.Equal(t, "111", got[0].ProductID)
	assert.Equal(t, int64(3), got[0].QuantitySold)
	assert.InDelta(t, 30.5, got[0].TotalRevenue, 1e-9)

	_, err = ProductSalesParquet(nil)
	assert.ErrorIs(t, err, ErrNoSales)
}

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Uploader(t *testing.T) {
	fake := &fakeS3{}
	u := NewS3Uploader(fake, "exports-bucket", "product_sales")
	now := time.Date(2024, 7, 4, 23, 0, 0, 0, time.UTC)

	key, err := u.Upload(context.Background(), "a.parquet", "application/octet-stream", []byte("data"), now)
	require.NoError(t, err)
	assert.Equal(t, "product_sales/dt=2024-07-04/a.parquet", key)
	assert.Equal(t, "exports-bucket", aws.ToString(fake.in.Bucket))
	assert.Equal(t, "data", string(fake.body))

	_, err = NewS3Uploader(fake, "", "").Upload(context.Background(), "a", "text/csv", nil, now)
	assert.ErrorIs(t, err, ErrNoBucket)

	_, err = NewS3Uploader(&fakeS3{err: errors.New("denied")}, "b", "").Upload(context.Background(), "a", "text/csv", nil, now)
	assert.Error(t, err)
}
