package archive

import (
	"testing"
	"time"

	"priceflow/dates"
	"priceflow/models"
	"priceflow/sources"
)

func swpWithPrices(lwID string, srcs ...string) models.SecurityWithPrices {
	d := dates.New(2024, time.March, 4)
	swp := models.SecurityWithPrices{
		Security: models.Security{LWID: lwID},
		DataDate: d,
	}
	for i, src := range srcs {
		v := 100.0 + float64(i)
		swp.CurrBdayPrices = append(swp.CurrBdayPrices, models.Price{
			Security:   swp.Security,
			Source:     sources.PriceSource{Name: src},
			DataDate:   d,
			ModifiedAt: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
			Values:     []models.PriceValue{models.NewPriceValue(models.TypePrice, &v)},
		})
	}
	return swp
}

func TestBuildParquetOneRowPerPricedSecurity(t *testing.T) {
	swps := []models.SecurityWithPrices{
		swpWithPrices("sec1", sources.Bloomberg, sources.Override),
		swpWithPrices("sec2", sources.FTSE),
		swpWithPrices("sec3"), // no prices, no row
	}
	data, rows, err := buildParquet("batch-1", dates.New(2024, time.March, 4), swps)
	if err != nil {
		t.Fatalf("buildParquet returned error: %v", err)
	}
	if rows != 2 {
		t.Fatalf("wrote %d rows, want 2", rows)
	}
	if len(data) == 0 {
		t.Fatal("parquet output is empty")
	}
	// PAR1 magic at both ends of the file.
	if string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Fatal("output does not look like a parquet file")
	}
}
