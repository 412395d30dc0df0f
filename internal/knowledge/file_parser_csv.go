package knowledge

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	apperrors "github.com/aihub/docqa/internal/errors"
)

// CSVParser 将CSV表格按行输出为对齐文本，首行为表头
type CSVParser struct{}

func (p *CSVParser) MediaTypes() []string {
	return []string{MediaTypeCSV}
}

func (p *CSVParser) Parse(ctx context.Context, content []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindExtraction, "failed to parse csv", err)
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return "", nil
	}
	return renderTable(records[0], records[1:]), nil
}

// renderTable 渲染无边框的左对齐表格
func renderTable(header []string, rows [][]string) string {
	width := len(header)
	for _, row := range rows {
		width = max(width, len(row))
	}

	var buf strings.Builder
	table := tablewriter.NewWriter(&buf)
	table.SetHeader(padRow(header, width))
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	for _, row := range rows {
		table.Append(padRow(row, width))
	}
	table.Render()
	return buf.String()
}

func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}
