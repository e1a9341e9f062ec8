package infer

import "regexp"

// DatePattern pairs a recognizer with the Go layout used to parse values that
// matched it. The list is ordered; when two patterns match a column equally
// often, the earlier one is reported as the dominant format.
type DatePattern struct {
	Name   string
	Layout string
	re     *regexp.Regexp
}

// datePatterns is the closed list of formats the engine recognizes. Statements
// in the wild almost always use one of these; anything else is a string column.
var datePatterns = []DatePattern{
	{Name: "YYYY-MM-DD", Layout: "2006-01-02", re: regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)},
	{Name: "DD/MM/YYYY", Layout: "02/01/2006", re: regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)},
	{Name: "DD-MM-YYYY", Layout: "02-01-2006", re: regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`)},
	{Name: "DD/MM/YY", Layout: "02/01/06", re: regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2}$`)},
	{Name: "DD-MMM-YYYY", Layout: "02-Jan-2006", re: regexp.MustCompile(`^\d{1,2}-[A-Za-z]{3}-\d{4}$`)},
	{Name: "DD-MMM-YY", Layout: "02-Jan-06", re: regexp.MustCompile(`^\d{1,2}-[A-Za-z]{3}-\d{2}$`)},
	{Name: "DD MMM YYYY", Layout: "02 Jan 2006", re: regexp.MustCompile(`^\d{1,2} [A-Za-z]{3} \d{4}$`)},
	{Name: "MMM DD, YYYY", Layout: "Jan 02, 2006", re: regexp.MustCompile(`^[A-Za-z]{3} \d{1,2}, \d{4}$`)},
	{Name: "YYYY/MM/DD", Layout: "2006/01/02", re: regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)},
	{Name: "DD.MM.YYYY", Layout: "02.01.2006", re: regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`)},
}

// matchDatePattern returns the index of the first pattern matching v, or -1.
func matchDatePattern(v string) int {
	for i, p := range datePatterns {
		if p.re.MatchString(v) {
			return i
		}
	}
	return -1
}

// LayoutFor maps a pattern name back to its Go time layout. Unknown names
// return the empty string.
func LayoutFor(name string) string {
	for _, p := range datePatterns {
		if p.Name == name {
			return p.Layout
		}
	}
	return ""
}
