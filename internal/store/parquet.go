package store

import (
	"github.com/parquet-go/parquet-go"
)

// ParquetCodec persists archives as Parquet, the default columnar format.
type ParquetCodec struct{}

func (ParquetCodec) Extension() string { return "parquet" }

func (ParquetCodec) Write(path string, recs []barRecord) error {
	return parquet.WriteFile(path, recs)
}

func (ParquetCodec) Read(path string) ([]barRecord, error) {
	return parquet.ReadFile[barRecord](path)
}
