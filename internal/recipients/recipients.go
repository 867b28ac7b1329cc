// Package recipients turns uploaded contact lists into E.164-style phone numbers.
package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// PreviewLimit caps how many numbers a preview returns.
const PreviewLimit = 500

// ParseCSV reads a contact sheet. The first row is a header. When the header
// names a country code column (country_code or cc) and a phone column (phone
// or number) the two are joined, otherwise the first column is used.
func ParseCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	ccCol, phoneCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))) {
		case "country_code", "cc":
			if ccCol < 0 {
				ccCol = i
			}
		case "phone", "number":
			if phoneCol < 0 {
				phoneCol = i
			}
		}
	}
	joined := ccCol >= 0 && phoneCol >= 0

	var phones []string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}

		var phone string
		if joined {
			ph := clean(field(row, phoneCol))
			if ph == "" {
				continue
			}
			phone = "+" + strings.TrimPrefix(clean(field(row, ccCol)), "+") + strings.TrimPrefix(ph, "+")
		} else {
			phone = Normalize(field(row, 0))
		}
		if phone != "" {
			phones = append(phones, phone)
		}
	}
	return Dedupe(phones), nil
}

// ParseList reads numbers separated by newlines or commas.
func ParseList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})
	phones := make([]string, 0, len(fields))
	for _, f := range fields {
		if p := Normalize(f); p != "" {
			phones = append(phones, p)
		}
	}
	return Dedupe(phones)
}

// Normalize trims a raw cell, drops a spreadsheet float suffix and prefixes +.
// Empty and "nan" cells yield "".
func Normalize(raw string) string {
	p := clean(raw)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return p
}

// Dedupe drops repeated numbers keeping the first occurrence.
func Dedupe(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, p := range list {
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func clean(raw string) string {
	p := strings.TrimSpace(raw)
	if strings.EqualFold(p, "nan") {
		return ""
	}
	return strings.TrimSuffix(p, ".0")
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
