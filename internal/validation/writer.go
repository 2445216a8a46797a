package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/fpang/datalake-ingestion/internal/catalog"
)

// Encoder serialises one partition.
type Encoder interface {
	Encode(w io.Writer, records []Record) error
	// Extension is appended to generated file names, including the leading dot.
	Extension() string
	ContentType() string
	Format() string
	Compression() string
}

// ParquetWriter writes records as snappy-compressed Transaction rows.
type ParquetWriter struct{}

func (ParquetWriter) Encode(w io.Writer, records []Record) error {
	rows := make([]Transaction, len(records))
	for i, rec := range records {
		rows[i] = NewTransaction(rec)
	}
	pw := parquet.NewGenericWriter[Transaction](w, parquet.Compression(&parquet.Snappy))
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func (ParquetWriter) Extension() string   { return ".snappy.parquet" }
func (ParquetWriter) ContentType() string { return "application/vnd.apache.parquet" }
func (ParquetWriter) Format() string      { return catalog.FormatParquet }
func (ParquetWriter) Compression() string { return "snappy" }

// JSONLinesWriter writes records unchanged, one JSON object per line.
type JSONLinesWriter struct{}

func (JSONLinesWriter) Encode(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

func (JSONLinesWriter) Extension() string   { return ".json" }
func (JSONLinesWriter) ContentType() string { return "application/x-ndjson" }
func (JSONLinesWriter) Format() string      { return catalog.FormatJSON }
func (JSONLinesWriter) Compression() string { return "" }

// EncodeBytes runs enc over records into memory.
func EncodeBytes(enc Encoder, records []Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
