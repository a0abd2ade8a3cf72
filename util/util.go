// Package util contains misc small helpers: clamping, error merging,
// string de-duplication and float-CSV encoding, mirroring the teacher's
// small util package. No other package in this module imports it.
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// Float64SliceToCSV converts a slice of f64s to CSV formatted data.
// Sensible default values for format and prec are 'G' and 6.
func Float64SliceToCSV(fs []float64, format byte, prec int) string {
	s := make([]string, len(fs))
	for i, v := range fs {
		s[i] = strconv.FormatFloat(v, format, prec, 64)
	}
	return strings.Join(s, ",")
}

// UniqueString reduces a slice of strings to the unique values, preserving
// first-seen order.
func UniqueString(slice []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Clamp limits min <= input <= max
func Clamp(input, min, max float64) float64 {
	if input < min {
		return min
	}
	if input > max {
		return max
	}
	return input
}

// MergeErrors converts many errors to a single one, newline separated.
// Returns nil if errs is empty or contains only nil errors.
func MergeErrors(errs []error) error {
	var strs []string
	for _, err := range errs {
		if err != nil {
			strs = append(strs, err.Error())
		}
	}
	if len(strs) == 0 {
		return nil
	}
	return fmt.Errorf(strings.Join(strs, "\n"))
}
