package engine

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

// StatisticsSchema mirrors the upstream JSON field names.
var StatisticsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "YEAR", Type: arrow.PrimitiveTypes.Int32},
	{Name: "SEX", Type: arrow.PrimitiveTypes.Int8},
	{Name: "MOI", Type: arrow.BinaryTypes.String},
	{Name: "County_Township_ZH", Type: arrow.BinaryTypes.String},
	{Name: "e0_mean", Type: arrow.PrimitiveTypes.Float64},
	{Name: "e0_sd", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteArrow streams the whole store as a single record batch in Arrow IPC stream format.
func WriteArrow(w io.Writer, cs *ColumnStore) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, StatisticsSchema)
	defer b.Release()

	b.Field(0).(*array.Int32Builder).AppendValues(cs.Years, nil)
	b.Field(1).(*array.Int8Builder).AppendValues(cs.Sexes, nil)

	moi := b.Field(2).(*array.StringBuilder)
	names := b.Field(3).(*array.StringBuilder)
	moi.Reserve(cs.Len())
	names.Reserve(cs.Len())
	for i := 0; i < cs.Len(); i++ {
		moi.Append(string(cs.RegionDict[cs.RegionIDs[i]]))
		names.Append(cs.NameDict[cs.NameIDs[i]])
	}

	b.Field(4).(*array.Float64Builder).AppendValues(cs.Means, nil)
	b.Field(5).(*array.Float64Builder).AppendValues(cs.SDs, nil)

	rec := b.NewRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(StatisticsSchema), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("close arrow writer: %w", err)
	}
	return nil
}
