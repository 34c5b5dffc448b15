package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const attrA = "https://example.com/attr/classification/value/secret"

func TestNewPolicy(t *testing.T) {
	p := New([]string{attrA}, []string{"alice@example.com"})

	assert.NotEmpty(t, p.UUID)
	assert.Equal(t, []string{attrA}, p.Attributes())
	assert.Equal(t, []string{"alice@example.com"}, p.Body.Dissem)
	require.NoError(t, p.Validate())
}

func TestMarshalParse(t *testing.T) {
	p := New([]string{attrA}, nil)

	data, err := p.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dataAttributes":[{"attribute":"`+attrA+`"}]`)
	assert.Contains(t, string(data), `"dissem":[]`)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, p, parsed)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		policy *Policy
	}{
		{"missing uuid", &Policy{Body: Body{DataAttributes: []Attribute{{Attribute: attrA}}}}},
		{"bad uuid", &Policy{UUID: "nope"}},
		{"not a url", New([]string{"classification=secret"}, nil)},
		{"no attr segment", New([]string{"https://example.com/classification/secret"}, nil)},
		{"empty dissem entry", New(nil, []string{""})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.policy.Validate(), ErrInvalidPolicy)
		})
	}

	_, err := Parse([]byte("{"))
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}
