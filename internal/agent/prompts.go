package agent

import (
	"fmt"
	"strings"
)

// maxExcerpt bounds how much document text goes into a generation prompt.
const maxExcerpt = 12000

func generationPrompt(docText, lastError, lastCode string) string {
	var b strings.Builder
	b.WriteString("You are an expert at writing extraction code for financial statements.\n\n")
	b.WriteString("Write the BODY of a JavaScript function that receives one argument `text`\n")
	b.WriteString("(the full statement text) and returns an array of objects.\n\n")
	b.WriteString("Output contract:\n")
	b.WriteString("- Bank/card statements: return objects {date: \"YYYY-MM-DD\", amount: positive number, type: \"credit\"|\"debit\", description: string, balance: number (optional)}.\n")
	b.WriteString("- Investment statements: return objects {name: string, units: number (optional), investedValue: number (optional), currentValue: number (optional)}.\n")
	b.WriteString("- amount is ALWAYS positive; direction goes in type.\n")
	b.WriteString("- The function body MUST end with an explicit `return` of the array.\n\n")
	b.WriteString("Environment:\n")
	b.WriteString("- Plain JavaScript built-ins only: String, Number, Date, RegExp, Math, Array, Object, JSON.\n")
	b.WriteString("- Helpers available: parseNumber(s) -> number|null (strips currency symbols, commas, CR/DR, parens-negative), parseDate(s) -> \"YYYY-MM-DD\"|null, log(...) for debugging.\n")
	b.WriteString("- No require, no imports, no network, no filesystem, no timers. Using any of these fails the run.\n\n")
	b.WriteString("Reply with STRICT JSON only, no markdown fences:\n")
	b.WriteString(`{"code": "<function body>", "detectedFormat": "bank"|"card"|"investment", "dateFormat": "<source date format, e.g. DD/MM/YYYY>", "confidence": <0..1>}` + "\n\n")

	if lastError != "" {
		b.WriteString("Your previous attempt failed. Fix the code.\n")
		b.WriteString("Previous code:\n")
		b.WriteString(lastCode)
		b.WriteString("\n\nError:\n")
		b.WriteString(lastError)
		b.WriteString("\n\n")
	}

	b.WriteString("Statement text")
	if len(docText) > maxExcerpt {
		b.WriteString(fmt.Sprintf(" (first %d characters)", maxExcerpt))
		docText = docText[:maxExcerpt]
	}
	b.WriteString(":\n")
	b.WriteString(docText)
	return b.String()
}
