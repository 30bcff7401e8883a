package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// utf8BOM 让 Excel 以 UTF-8 打开中文 CSV
const utf8BOM = "\uFEFF"

func writeCSV(t table) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(t.headers); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := w.WriteAll(t.rows); err != nil {
		return nil, fmt.Errorf("failed to write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}
