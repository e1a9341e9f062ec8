// Package infer classifies spreadsheet columns as dates, numbers or strings
// and computes per-column summary statistics. The parser-config generator
// feeds its output to the model so the model reasons over column shapes
// instead of raw cells.
package infer

import (
	"hash/fnv"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

// DataType is the inferred type of a column.
type DataType string

const (
	TypeString DataType = "string"
	TypeNumber DataType = "number"
	TypeDate   DataType = "date"
)

// sampleLimit bounds how many unique values are classified per column.
// Statements can run to tens of thousands of rows; a 100-value sample is
// plenty to type a column.
const sampleLimit = 100

// typeThreshold is the fraction of sampled values that must match a type
// before the column is committed to it. Statements routinely carry a few
// malformed or summary rows that must not flip the inferred type.
const typeThreshold = 0.90

// ColumnStats summarizes the non-null values of one column. Count always
// equals NullCount plus the number of non-null values seen.
type ColumnStats struct {
	Count       int      `json:"count"`
	NullCount   int      `json:"nullCount"`
	UniqueCount int      `json:"uniqueCount"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	// String columns keep a few concrete examples for the model.
	SampleValues []string `json:"sampleValues,omitempty"`
	// Date columns report the observed range and the most frequent format.
	MinDate        string `json:"minDate,omitempty"`
	MaxDate        string `json:"maxDate,omitempty"`
	DominantFormat string `json:"dominantFormat,omitempty"`
}

// Column is one typed column of a sheet.
type Column struct {
	Name     string      `json:"name"`
	Index    int         `json:"index"`
	DataType DataType    `json:"dataType"`
	Stats    ColumnStats `json:"stats"`
}

// SheetMetadata describes one uploaded sheet. It is computed once per parse
// attempt and immutable afterwards.
type SheetMetadata struct {
	Columns              []Column `json:"columns"`
	RowCount             int      `json:"rowCount"`
	EmptyColumnNameCount int      `json:"emptyColumnNameCount"`
}

var numericPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// cleanNumeric strips the decoration statements put around numbers: currency
// symbols, thousands separators, CR/DR suffixes and accounting parentheses.
func cleanNumeric(v string) string {
	s := strings.TrimSpace(v)
	s = strings.TrimSuffix(strings.TrimSuffix(strings.ToUpper(s), "CR"), "DR")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = s[1 : len(s)-1]
	}
	replacer := strings.NewReplacer("₹", "", "$", "", "€", "", "£", "", ",", "", " ", "")
	s = replacer.Replace(s)
	// Only a leading sign is numeric decoration. Interior dashes mean the
	// value is an identifier (account or phone number), not an amount.
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		s = s[1:]
	}
	return s
}

func isNumeric(v string) bool {
	cleaned := cleanNumeric(v)
	return cleaned != "" && numericPattern.MatchString(cleaned)
}

func isNull(v string) bool {
	t := strings.TrimSpace(v)
	return t == "" || strings.EqualFold(t, "null") || strings.EqualFold(t, "n/a") || t == "-"
}

// InferColumn classifies the raw cell values of one column (header excluded)
// and computes its stats. Stats are computed over non-null values only.
func InferColumn(name string, index int, values []string) Column {
	col := Column{Name: name, Index: index}
	col.Stats.Count = len(values)

	var nonNull []string
	unique := make(map[string]struct{})
	for _, v := range values {
		if isNull(v) {
			col.Stats.NullCount++
			continue
		}
		t := strings.TrimSpace(v)
		nonNull = append(nonNull, t)
		unique[t] = struct{}{}
	}
	col.Stats.UniqueCount = len(unique)

	sample := sampleUnique(nonNull)
	if len(sample) == 0 {
		col.DataType = TypeString
		return col
	}

	dateHits := 0
	numberHits := 0
	formatCounts := make([]int, len(datePatterns))
	firstSeen := make([]int, len(datePatterns))
	for i := range firstSeen {
		firstSeen[i] = -1
	}
	for i, v := range sample {
		if idx := matchDatePattern(v); idx >= 0 {
			dateHits++
			formatCounts[idx]++
			if firstSeen[idx] == -1 {
				firstSeen[idx] = i
			}
			continue
		}
		if isNumeric(v) {
			numberHits++
		}
	}

	switch {
	case float64(dateHits) >= typeThreshold*float64(len(sample)):
		col.DataType = TypeDate
		col.Stats.DominantFormat = dominantFormat(formatCounts, firstSeen)
		col.Stats.MinDate, col.Stats.MaxDate = dateRange(nonNull, col.Stats.DominantFormat)
	case float64(numberHits) >= typeThreshold*float64(len(sample)):
		col.DataType = TypeNumber
		col.Stats.Min, col.Stats.Max = numericRange(nonNull)
	default:
		col.DataType = TypeString
		col.Stats.SampleValues = stringSamples(nonNull)
	}
	return col
}

// InferSheet types every column of a sheet. Rows shorter than the header are
// padded with empty cells so ragged CSV exports don't shift columns.
func InferSheet(headers []string, rows [][]string) *SheetMetadata {
	meta := &SheetMetadata{RowCount: len(rows)}
	for i, h := range headers {
		name := strings.TrimSpace(h)
		if name == "" {
			meta.EmptyColumnNameCount++
		}
		values := make([]string, 0, len(rows))
		for _, row := range rows {
			if i < len(row) {
				values = append(values, row[i])
			} else {
				values = append(values, "")
			}
		}
		meta.Columns = append(meta.Columns, InferColumn(name, i, values))
	}
	return meta
}

// sampleUnique draws up to sampleLimit unique values in encounter order.
// Small columns are taken whole; larger ones are reservoir-sampled to bound
// classification cost.
func sampleUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	all := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		all = append(all, v)
	}
	if len(all) <= sampleLimit {
		return all
	}
	rng := rand.New(rand.NewSource(seedFor(all)))
	reservoir := make([]string, sampleLimit)
	copy(reservoir, all[:sampleLimit])
	for i := sampleLimit; i < len(all); i++ {
		if j := rng.Intn(i + 1); j < sampleLimit {
			reservoir[j] = all[i]
		}
	}
	return reservoir
}

// seedFor derives the sampling seed from the column's own values, so the
// same column always draws the same sample and classifies the same way.
func seedFor(values []string) int64 {
	h := fnv.New64a()
	for _, v := range values {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	return int64(h.Sum64())
}

// dominantFormat picks the most frequent matching pattern; ties go to the
// value encountered first in the sample.
func dominantFormat(counts, firstSeen []int) string {
	best := -1
	for i, c := range counts {
		if c == 0 {
			continue
		}
		if best == -1 || c > counts[best] || (c == counts[best] && firstSeen[i] < firstSeen[best]) {
			best = i
		}
	}
	if best == -1 {
		return ""
	}
	return datePatterns[best].Name
}

func dateRange(values []string, format string) (minDate, maxDate string) {
	layout := LayoutFor(format)
	if layout == "" {
		return "", ""
	}
	var minT, maxT time.Time
	for _, v := range values {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		if minT.IsZero() || t.Before(minT) {
			minT = t
		}
		if maxT.IsZero() || t.After(maxT) {
			maxT = t
		}
	}
	if minT.IsZero() {
		return "", ""
	}
	return minT.Format("2006-01-02"), maxT.Format("2006-01-02")
}

func numericRange(values []string) (minV, maxV *float64) {
	for _, v := range values {
		f, ok := parseCleanedFloat(v)
		if !ok {
			continue
		}
		if minV == nil || f < *minV {
			m := f
			minV = &m
		}
		if maxV == nil || f > *maxV {
			m := f
			maxV = &m
		}
	}
	return minV, maxV
}

func stringSamples(values []string) []string {
	const maxSamples = 5
	seen := make(map[string]struct{})
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == maxSamples {
			break
		}
	}
	return out
}
