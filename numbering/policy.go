/*
Package numbering provides document number policies and formatting.

PURPOSE:
  Every business document (sales order, quotation, invoice, purchase order)
  carries a human-readable number like "SO-202603-0042". This package owns
  the per-module configuration for those numbers and the pure logic that
  renders and parses them. It does NOT allocate numbers - allocation is a
  transactional concern handled by document.Issuer against the store.

KEY CONCEPTS IN THIS FILE (policy.go):
  - Policy: Per-module numbering configuration (prefix, separator,
    date bucket format, counter width)
  - BucketFormat: How the issue date is rendered into the number. The
    bucket also defines the counter reset boundary: when the rendered
    bucket string changes, the counter restarts at 1
  - Format/Parse: Deterministic rendering and round-trip parsing

DESIGN PRINCIPLES:
  1. Purity: RenderBucket and Format have no side effects and never
     touch LastIssued
  2. Versioning: Policies are versioned records; readers always see a
     whole policy, never a half-applied update
  3. Separation: Changing a policy never rewrites already-issued numbers

USAGE:
  p := numbering.Policy{
      Module:       "SalesOrder",
      Prefix:       "SO",
      Separator:    numbering.SeparatorDash,
      BucketFormat: numbering.BucketYYYYMM,
      DigitWidth:   4,
  }
  bucket := p.RenderBucket(time.Now())   // "202603"
  number := p.Format(bucket, 42)         // "SO-202603-0042"

SEE ALSO:
  - document/issuer.go: Transactional number allocation
  - factory/defaults.go: Default policies per module
*/
package numbering

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// BUCKET FORMAT - Date rendering and counter reset boundary
// =============================================================================

// BucketFormat controls how the issue date is rendered into the number.
// The rendered bucket string is also the counter reset boundary.
type BucketFormat string

const (
	BucketYY     BucketFormat = "YY"     // "26"     resets yearly
	BucketYYYY   BucketFormat = "YYYY"   // "2026"   resets yearly
	BucketYYMM   BucketFormat = "YYMM"   // "2603"   resets monthly
	BucketYYYYMM BucketFormat = "YYYYMM" // "202603" resets monthly
)

// Valid reports whether f is a supported bucket format.
func (f BucketFormat) Valid() bool {
	switch f {
	case BucketYY, BucketYYYY, BucketYYMM, BucketYYYYMM:
		return true
	}
	return false
}

// =============================================================================
// SEPARATOR
// =============================================================================

const (
	SeparatorDash  = "-"
	SeparatorSlash = "/"
	SeparatorDot   = "."
)

var separators = map[string]bool{
	SeparatorDash:  true,
	SeparatorSlash: true,
	SeparatorDot:   true,
}

// =============================================================================
// POLICY - Per-module numbering configuration
// =============================================================================

// Policy is the numbering configuration for one document module.
//
// LastIssued is the last counter value issued for the CURRENT bucket.
// It is owned exclusively by the transactional allocator in the store;
// nothing else writes it, and Format/Parse never read it.
type Policy struct {
	Module       string
	Prefix       string
	Separator    string
	BucketFormat BucketFormat
	DigitWidth   int
	LastIssued   int64
	Version      int
}

// Sentinel errors for policy validation and number parsing.
var (
	ErrInvalidPolicy   = errors.New("invalid numbering policy")
	ErrMalformedNumber = errors.New("malformed document number")
)

// Validate checks that the policy can produce well-formed numbers.
func (p Policy) Validate() error {
	if p.Module == "" {
		return fmt.Errorf("%w: module is required", ErrInvalidPolicy)
	}
	if p.Prefix == "" || !isAlphanumeric(p.Prefix) {
		return fmt.Errorf("%w: prefix must be non-empty alphanumeric, got %q", ErrInvalidPolicy, p.Prefix)
	}
	if !separators[p.Separator] {
		return fmt.Errorf("%w: separator must be one of '-', '/', '.', got %q", ErrInvalidPolicy, p.Separator)
	}
	if !p.BucketFormat.Valid() {
		return fmt.Errorf("%w: unknown bucket format %q", ErrInvalidPolicy, p.BucketFormat)
	}
	if p.DigitWidth < 1 {
		return fmt.Errorf("%w: digit width must be >= 1, got %d", ErrInvalidPolicy, p.DigitWidth)
	}
	return nil
}

// RenderBucket formats the date portion of a number for the given time.
// Pure: no side effects, never reads LastIssued.
func (p Policy) RenderBucket(now time.Time) string {
	switch p.BucketFormat {
	case BucketYY:
		return now.Format("06")
	case BucketYYYY:
		return now.Format("2006")
	case BucketYYMM:
		return now.Format("0601")
	case BucketYYYYMM:
		return now.Format("200601")
	default:
		return now.Format("2006")
	}
}

// Format renders a complete document number from a bucket and counter.
// Counters wider than DigitWidth are not truncated, so uniqueness holds
// even after the zero-padded range overflows.
func (p Policy) Format(bucket string, counter int64) string {
	return fmt.Sprintf("%s%s%s%s%0*d", p.Prefix, p.Separator, bucket, p.Separator, p.DigitWidth, counter)
}

// Parse is the inverse of Format: it recovers (bucket, counter) from a
// rendered number. Used by audits and tests to verify round-tripping.
func (p Policy) Parse(number string) (bucket string, counter int64, err error) {
	parts := strings.Split(number, p.Separator)
	if len(parts) != 3 {
		return "", 0, fmt.Errorf("%w: %q does not match prefix%sbucket%scounter", ErrMalformedNumber, number, p.Separator, p.Separator)
	}
	if parts[0] != p.Prefix {
		return "", 0, fmt.Errorf("%w: %q has prefix %q, want %q", ErrMalformedNumber, number, parts[0], p.Prefix)
	}
	if len(parts[1]) != len(p.RenderBucket(time.Now())) {
		// All supported formats render a fixed-width bucket.
		return "", 0, fmt.Errorf("%w: %q bucket %q has wrong width for format %s", ErrMalformedNumber, number, parts[1], p.BucketFormat)
	}
	counter, convErr := strconv.ParseInt(parts[2], 10, 64)
	if convErr != nil || counter < 1 {
		return "", 0, fmt.Errorf("%w: %q has non-positive or non-numeric counter %q", ErrMalformedNumber, number, parts[2])
	}
	return parts[1], counter, nil
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
