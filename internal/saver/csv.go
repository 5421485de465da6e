package saver

import (
	"encoding/csv"
	"os"
	"strconv"
)

// CSVSaver writes rows as CSV (header: symbol,date,open,high,low,close,volume,ma50,ma200).
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(rows []Row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	if err := w.Write([]string{"symbol", "date", "open", "high", "low", "close", "volume", "ma50", "ma200"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			r.Symbol,
			r.Date,
			floatStr(r.Open),
			floatStr(r.High),
			floatStr(r.Low),
			floatStr(r.Close),
			floatStr(r.Volume),
			floatStr(r.MA50),
			floatStr(r.MA200),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
