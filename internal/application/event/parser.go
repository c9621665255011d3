// Package event turns decoded push payloads into typed notification events.
//
// Two payload shapes are understood:
//
//   - a JSON object with a "type" discriminator, a "resource" object and the
//     subtype attributes at the top level (Parse);
//   - the native GKE shape, where the discriminator is the "type_url"
//     attribute, the subtype attributes are the JSON "payload" attribute and
//     the message data is a human sentence (ParseAttributes).
//
// Unknown discriminators never fail: they yield a GenericEvent carrying the
// original attributes.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gke-notify/internal/domain"
)

const (
	keyType        = "type"
	keyResource    = "resource"
	keyDescription = "description"
)

var errNotObject = errors.New("payload is not a JSON object")

// Parser dispatches payloads to the decoders of a Registry.
type Parser struct {
	registry *Registry
}

// NewParser returns a parser over r, or over DefaultRegistry when r is nil.
func NewParser(r *Registry) *Parser {
	if r == nil {
		r = DefaultRegistry()
	}
	return &Parser{registry: r}
}

// Parse decodes a payload carrying its own "type" discriminator.
func (p *Parser) Parse(raw domain.RawPayload) (domain.NotificationEvent, error) {
	fields, err := objectFields(raw)
	if err != nil {
		return nil, &domain.ParseError{Kind: domain.ParseMalformedJSON, Err: err}
	}

	discriminator, ok := stringField(fields, keyType)
	if !ok || discriminator == "" {
		return nil, &domain.ParseError{Kind: domain.ParseMissingDiscriminator}
	}

	h := domain.EventHeader{Type: discriminator}
	h.Description, _ = stringField(fields, keyDescription)
	return p.build(h, fields, raw)
}

// ParseAttributes decodes the native GKE shape. data is the decoded message
// data, used as the description.
func (p *Parser) ParseAttributes(attrs map[string]string, data domain.RawPayload) (domain.NotificationEvent, error) {
	discriminator := attrs[domain.AttrTypeURL]
	if discriminator == "" {
		return nil, &domain.ParseError{Kind: domain.ParseMissingDiscriminator}
	}

	payload := []byte(attrs[domain.AttrPayload])
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("{}")
	}
	fields, err := objectFields(payload)
	if err != nil {
		return nil, &domain.ParseError{Kind: domain.ParseMalformedJSON, Err: err}
	}

	h := domain.EventHeader{
		Type:        discriminator,
		Project:     attrs[domain.AttrProjectID],
		Description: strings.TrimSpace(string(data)),
		Resource: domain.Resource{
			Name:     attrs[domain.AttrClusterName],
			Location: attrs[domain.AttrClusterLocation],
		},
	}
	if h.Resource.Name != "" {
		h.Resource.Type = "cluster"
	}
	return p.build(h, fields, payload)
}

// Known reports whether discriminator has a typed decoder.
func (p *Parser) Known(discriminator string) bool {
	return p.registry.Known(discriminator)
}

func (p *Parser) build(h domain.EventHeader, fields map[string]json.RawMessage, payload []byte) (domain.NotificationEvent, error) {
	decode, known := p.registry.Lookup(h.Type)

	if rawRes, ok := fields[keyResource]; ok {
		var res domain.Resource
		if err := json.Unmarshal(rawRes, &res); err != nil {
			// Unknown subtypes may shape "resource" differently; it stays in Attributes.
			if known {
				return nil, &domain.ParseError{Kind: domain.ParseMalformedJSON, Err: err}
			}
		} else {
			h.Resource = mergeResource(h.Resource, res)
		}
	}

	if !known {
		attrs := make(map[string]json.RawMessage, len(fields))
		for k, v := range fields {
			if k == keyType {
				continue
			}
			attrs[k] = v
		}
		return &domain.GenericEvent{EventHeader: h, Attributes: attrs}, nil
	}

	ev, err := decode(h, payload)
	if err != nil {
		return nil, &domain.ParseError{Kind: domain.ParseMalformedJSON, Err: err}
	}
	return ev, nil
}

// mergeResource overlays the payload resource onto the one derived from
// attributes, keeping attribute values the payload leaves empty.
func mergeResource(base, over domain.Resource) domain.Resource {
	if over.Type == "" {
		over.Type = base.Type
	}
	if over.Name == "" {
		over.Name = base.Name
	}
	if over.Location == "" {
		over.Location = base.Location
	}
	if over.Namespace == "" {
		over.Namespace = base.Namespace
	}
	if over.Labels == nil {
		over.Labels = base.Labels
	}
	return over
}

func objectFields(raw []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}
