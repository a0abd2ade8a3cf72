package pattern

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nasa-jpl/scanctl/camera"
)

// ParseCSV reads an explicit-pattern record list in the form
// "x,y,z,c[,focus_mode[,focus_values...]]", one record per row, comment
// lines beginning with '#' ignored. It does not validate against axis
// limits; callers pass the result to Explicit for that.
func ParseCSV(r io.Reader) ([]ExplicitRecord, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("pattern: csv: %w", err)
	}
	recs := make([]ExplicitRecord, 0, len(rows))
	for i, row := range rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("pattern: csv row %d: need at least x,y,z,c", i)
		}
		vals := make([]float64, 4)
		for j := 0; j < 4; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("pattern: csv row %d field %d: %w", i, j, err)
			}
			vals[j] = v
		}
		rec := ExplicitRecord{X: vals[0], Y: vals[1], Z: vals[2], C: vals[3]}
		if len(row) >= 5 && strings.TrimSpace(row[4]) != "" {
			rec.FocusMode = camera.FocusMode(strings.TrimSpace(row[4]))
		}
		if len(row) > 5 {
			for _, f := range row[5:] {
				f = strings.TrimSpace(f)
				if f == "" {
					continue
				}
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, fmt.Errorf("pattern: csv row %d: focus value %q: %w", i, f, err)
				}
				rec.FocusValues = append(rec.FocusValues, v)
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
