package provider

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// AttributeValue wraps the payload of one provider attribute.
type AttributeValue struct {
	Data string `xml:"Data" json:"Data"`
}

// UnmarshalJSON accepts Data as a string or a number.
func (v *AttributeValue) UnmarshalJSON(b []byte) error {
	var raw struct {
		Data json.RawMessage `json:"Data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v.Data = scalarString(raw.Data)
	return nil
}

// AttributeData is one attribute id/value pair. Value is nil when the
// provider sent the id without the value wrapper.
type AttributeData struct {
	AttributeID int             `xml:"AttributeId" json:"AttributeId"`
	Value       *AttributeValue `xml:"Value" json:"Value"`
}

// AttributeList is the attribute block of a raw record. Providers encode a
// single attribute as a bare object and several as a list; both decode into
// the same slice.
type AttributeList []AttributeData

// UnmarshalJSON normalizes singleton and list encodings.
func (l *AttributeList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var items []AttributeData
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("decode attribute list: %w", err)
		}
		*l = items
		return nil
	}
	var one AttributeData
	if err := json.Unmarshal(b, &one); err != nil {
		return fmt.Errorf("decode attribute: %w", err)
	}
	*l = AttributeList{one}
	return nil
}

// UnmarshalXML collects repeated AttributeData elements under the wrapper.
func (l *AttributeList) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var wrapper struct {
		Items []AttributeData `xml:"AttributeData"`
	}
	if err := d.DecodeElement(&wrapper, &start); err != nil {
		return err
	}
	*l = wrapper.Items
	return nil
}

// AttributeMap is the keyed lookup built from one raw record's attributes.
type AttributeMap map[int]AttributeValue

// ExtractAttributes builds the attribute-id lookup for a raw record.
// Malformed entries (missing value wrapper) are logged and left out.
func ExtractAttributes(list AttributeList, logger *slog.Logger) AttributeMap {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(AttributeMap, len(list))
	for _, a := range list {
		if a.Value == nil {
			logger.Warn("Attribute without value wrapper, ignoring", "attribute_id", a.AttributeID)
			continue
		}
		m[a.AttributeID] = *a.Value
	}
	return m
}

// Get returns the attribute payload, or def when the id is absent.
func (m AttributeMap) Get(id int, def string) string {
	if v, ok := m[id]; ok {
		return v.Data
	}
	return def
}

// Has reports whether the attribute is present with a non-empty payload.
func (m AttributeMap) Has(id int) bool {
	return strings.TrimSpace(m.Get(id, "")) != ""
}

// scalarString renders a JSON scalar as a plain string ("" for null).
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return string(raw)
}
