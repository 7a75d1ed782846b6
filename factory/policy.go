/*
Package factory provides JSON to Go numbering-policy conversion and the
default policies seeded per module.

PURPOSE:
  Converts JSON policy definitions into numbering.Policy values so
  administrators can change numbering (prefix, separator, date bucket,
  counter width) without code changes, and defines the defaults the
  server seeds on first boot.

JSON SCHEMA:
  {
    "module": "SalesOrder",
    "prefix": "SO",
    "separator": "-",
    "bucket_format": "YYYYMM",
    "digit_width": 4
  }

KEY GUARANTEES:
  - Parsed policies are always validated; a half-formed policy never
    reaches the store
  - Changing a policy never rewrites already-issued numbers and never
    resets counters (resets are a separate, audited store action)

USAGE:
  policy, err := factory.ParsePolicy("SalesOrder", jsonBytes)

  for _, p := range factory.DefaultPolicies() {
      store.SavePolicy(ctx, p)
  }

SEE ALSO:
  - numbering/policy.go: Policy type and validation
  - cmd/server/main.go: Seeding on boot
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/document-engine/document"
	"github.com/warp/document-engine/numbering"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a numbering policy.
type PolicyJSON struct {
	Module       string `json:"module"`
	Prefix       string `json:"prefix"`
	Separator    string `json:"separator"`
	BucketFormat string `json:"bucket_format"`
	DigitWidth   int    `json:"digit_width"`
}

// ParsePolicy converts a JSON policy body into a validated
// numbering.Policy for the given module. Any module field in the body is
// ignored: the admin API routes policies by URL, not payload.
func ParsePolicy(module string, data []byte) (numbering.Policy, error) {
	var j PolicyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return numbering.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	j.Module = module

	p := FromJSON(j)
	if err := p.Validate(); err != nil {
		return numbering.Policy{}, err
	}
	return p, nil
}

// FromJSON maps the JSON shape onto a Policy, applying defaults for
// omitted fields. Callers still validate.
func FromJSON(j PolicyJSON) numbering.Policy {
	p := numbering.Policy{
		Module:       j.Module,
		Prefix:       j.Prefix,
		Separator:    j.Separator,
		BucketFormat: numbering.BucketFormat(j.BucketFormat),
		DigitWidth:   j.DigitWidth,
	}
	if p.Separator == "" {
		p.Separator = numbering.SeparatorDash
	}
	if p.BucketFormat == "" {
		p.BucketFormat = numbering.BucketYYYYMM
	}
	if p.DigitWidth == 0 {
		p.DigitWidth = 4
	}
	return p
}

// ToJSON maps a Policy back onto its JSON shape for the admin API.
func ToJSON(p numbering.Policy) PolicyJSON {
	return PolicyJSON{
		Module:       p.Module,
		Prefix:       p.Prefix,
		Separator:    p.Separator,
		BucketFormat: string(p.BucketFormat),
		DigitWidth:   p.DigitWidth,
	}
}

// =============================================================================
// DEFAULT POLICIES
// =============================================================================

// DefaultPolicies returns the numbering defaults seeded for each module
// on first boot. Monthly buckets for high-volume modules, yearly for
// purchase orders.
func DefaultPolicies() []numbering.Policy {
	return []numbering.Policy{
		{Module: string(document.ModuleSalesOrder), Prefix: "SO", Separator: numbering.SeparatorDash, BucketFormat: numbering.BucketYYYYMM, DigitWidth: 4},
		{Module: string(document.ModuleQuotation), Prefix: "QT", Separator: numbering.SeparatorDash, BucketFormat: numbering.BucketYYYYMM, DigitWidth: 4},
		{Module: string(document.ModuleInvoice), Prefix: "INV", Separator: numbering.SeparatorSlash, BucketFormat: numbering.BucketYYYYMM, DigitWidth: 5},
		{Module: string(document.ModulePurchaseOrder), Prefix: "PO", Separator: numbering.SeparatorDash, BucketFormat: numbering.BucketYYYY, DigitWidth: 4},
	}
}
