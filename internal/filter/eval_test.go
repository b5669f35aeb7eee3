package filter_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/provgraph/internal/filter"
)

func TestMatch(t *testing.T) {
	attrs := map[string]any{
		"label":   "train",
		"size":    json.Number("400"),
		"sizeStr": "400",
		"ratio":   0.5,
		"flag":    true,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`statementType == 'DataRegistration'`, true},
		{`statementType == 'dataregistration'`, false},
		{`statementType != 'DataRegistration'`, false},
		{`attributes.label == 'train'`, true},
		{`attributes.label != 'train'`, false},
		{`attributes.size == 400`, true},
		{`attributes.size == 400.0`, true},
		{`attributes.size == '400'`, false},
		{`attributes.sizeStr == '400'`, true},
		{`attributes.sizeStr == 400`, false},
		{`attributes.sizeStr < 450`, false},
		{`attributes.sizeStr > 350`, false},
		{`attributes.size < 450`, true},
		{`attributes.size > 450`, false},
		{`attributes.ratio > 0.25`, true},
		{`attributes.ratio < 0.25`, false},
		{`attributes.flag == 1`, false},
		{`attributes.missing == 'x'`, false},
		{`attributes.missing < 1`, false},
		{`!(attributes.missing == 'x')`, true},
		{`attributes.label == 'train' && attributes.size > 100`, true},
		{`attributes.label == 'test' || attributes.size > 100`, true},
		{`attributes.label == 'test' || attributes.size > 1000`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f := filter.MustParse(tt.expr)
			assert.Equal(t, tt.want, filter.Match(f, "DataRegistration", attrs))
		})
	}
}

func TestMatch_EmptyCombinators(t *testing.T) {
	assert.True(t, filter.Match(nil, "T", nil))
	assert.True(t, filter.Match(filter.And{}, "T", nil))
	assert.False(t, filter.Match(filter.Or{}, "T", nil))
}
