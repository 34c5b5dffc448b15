// Package policy defines the access policy document carried by a NanoTDF,
// either embedded in the header or served from a remote location.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrInvalidPolicy = errors.New("invalid policy document")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Policy defines the access control rules for the TDF.
type Policy struct {
	// UUID uniquely identifies this policy instance.
	UUID string `json:"uuid" validate:"required,uuid"`

	// Body contains the core access control constraints.
	Body Body `json:"body"`
}

// Body contains the access control constraints.
type Body struct {
	// DataAttributes specifies the attributes required to access this data.
	DataAttributes []Attribute `json:"dataAttributes" validate:"dive"`

	// Dissem is an optional dissemination list. If present and non-empty, an
	// entity must be in this list in addition to satisfying DataAttributes.
	Dissem []string `json:"dissem" validate:"dive,required"`
}

// Attribute represents a data attribute in URI format.
// Format: {Namespace}/attr/{Name}/value/{Value}
type Attribute struct {
	// Attribute is the full attribute URI.
	Attribute string `json:"attribute" validate:"required,url"`
}

// New creates a policy with a generated UUID from attribute URIs and a
// dissemination list.
func New(attributes, dissem []string) *Policy {
	p := &Policy{
		UUID: uuid.New().String(),
		Body: Body{
			DataAttributes: []Attribute{},
			Dissem:         []string{},
		},
	}
	for _, a := range attributes {
		p.AddAttribute(a)
	}
	for _, d := range dissem {
		p.AddDissemination(d)
	}
	return p
}

// AddAttribute adds an attribute to the policy.
func (p *Policy) AddAttribute(attributeURI string) {
	p.Body.DataAttributes = append(p.Body.DataAttributes, Attribute{
		Attribute: attributeURI,
	})
}

// AddDissemination adds an entity to the dissemination list.
func (p *Policy) AddDissemination(entityID string) {
	p.Body.Dissem = append(p.Body.Dissem, entityID)
}

// Attributes returns the attribute URIs.
func (p *Policy) Attributes() []string {
	out := make([]string, len(p.Body.DataAttributes))
	for i, a := range p.Body.DataAttributes {
		out[i] = a.Attribute
	}
	return out
}

// Validate checks the document shape and the attribute URI layout.
func (p *Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	for _, a := range p.Body.DataAttributes {
		if !strings.Contains(a.Attribute, "/attr/") || !strings.Contains(a.Attribute, "/value/") {
			return fmt.Errorf("%w: attribute %q is not {namespace}/attr/{name}/value/{value}",
				ErrInvalidPolicy, a.Attribute)
		}
	}
	return nil
}

// Marshal encodes the policy as JSON, the form embedded in a header.
func (p *Policy) Marshal() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// Parse decodes and validates a JSON policy.
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
