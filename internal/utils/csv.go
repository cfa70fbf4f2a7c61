package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"priceArena/internal/ports"
)

func WriteTicksToCSV(ticks []ports.HistoricalTick, symbol, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"timestamp_ms", "time", "symbol", "price"})

	for _, t := range ticks {
		writer.Write([]string{
			strconv.FormatInt(t.TimestampMs, 10),
			time.UnixMilli(t.TimestampMs).UTC().Format(time.RFC3339),
			symbol,
			strconv.FormatFloat(t.Price, 'f', -1, 64),
		})
	}
	return writer.Error()
}
