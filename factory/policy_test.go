package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/document-engine/document"
	"github.com/warp/document-engine/factory"
	"github.com/warp/document-engine/numbering"
)

func TestParsePolicy(t *testing.T) {
	p, err := factory.ParsePolicy("Invoice", []byte(`{
		"prefix": "INV",
		"separator": "/",
		"bucket_format": "YYYYMM",
		"digit_width": 5
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Invoice", p.Module)
	assert.Equal(t, "INV", p.Prefix)
	assert.Equal(t, numbering.SeparatorSlash, p.Separator)
	assert.Equal(t, numbering.BucketYYYYMM, p.BucketFormat)
	assert.Equal(t, 5, p.DigitWidth)
}

func TestParsePolicy_BodyModuleIsIgnored(t *testing.T) {
	// The caller routes by module; a contradicting module in the body
	// must not win.
	p, err := factory.ParsePolicy("SalesOrder", []byte(`{"module": "Invoice", "prefix": "SO"}`))
	require.NoError(t, err)
	assert.Equal(t, "SalesOrder", p.Module)
}

func TestParsePolicy_AppliesDefaults(t *testing.T) {
	// Only the prefix is mandatory; the rest defaults to the
	// dash-separated monthly four-digit shape.
	p, err := factory.ParsePolicy("SalesOrder", []byte(`{"prefix": "SO"}`))
	require.NoError(t, err)

	assert.Equal(t, numbering.SeparatorDash, p.Separator)
	assert.Equal(t, numbering.BucketYYYYMM, p.BucketFormat)
	assert.Equal(t, 4, p.DigitWidth)
}

func TestParsePolicy_Rejects(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"bad json", `{"prefix":`},
		{"missing prefix", `{}`},
		{"unknown separator", `{"prefix": "SO", "separator": "_"}`},
		{"unknown bucket format", `{"prefix": "SO", "bucket_format": "YYYYMMDD"}`},
		{"negative digit width", `{"prefix": "SO", "digit_width": -1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := factory.ParsePolicy("SalesOrder", []byte(tc.json))
			assert.Error(t, err)
		})
	}
}

func TestToJSON_RoundTrip(t *testing.T) {
	p := numbering.Policy{
		Module:       "PurchaseOrder",
		Prefix:       "PO",
		Separator:    numbering.SeparatorDot,
		BucketFormat: numbering.BucketYYYY,
		DigitWidth:   6,
	}

	back := factory.FromJSON(factory.ToJSON(p))
	assert.Equal(t, p, back)
}

func TestDefaultPolicies_CoverEveryModule(t *testing.T) {
	defaults := factory.DefaultPolicies()

	byModule := make(map[string]numbering.Policy, len(defaults))
	for _, p := range defaults {
		require.NoError(t, p.Validate())
		byModule[p.Module] = p
	}

	for _, m := range document.Modules() {
		_, ok := byModule[string(m)]
		assert.True(t, ok, "no default policy for %s", m)
	}

	assert.Equal(t, "SO", byModule["SalesOrder"].Prefix)
	assert.Equal(t, numbering.SeparatorSlash, byModule["Invoice"].Separator)
	assert.Equal(t, numbering.BucketYYYY, byModule["PurchaseOrder"].BucketFormat)
}
