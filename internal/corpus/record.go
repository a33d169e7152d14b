package corpus

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Record is one past applicant's document. Records are treated as immutable.
type Record struct {
	ID             string              `json:"id"`
	JobTitle       string              `json:"jobTitle"` // empty when the source had none
	SpecAttributes map[string]string   `json:"specAttributes"`
	Activities     map[string][]string `json:"activities"` // category label -> ordered descriptions
}

// Source supplies corpus records
type Source interface {
	Load(ctx context.Context) ([]Record, error)
}

// Attribute returns the first non-empty attribute among keys
func (r Record) Attribute(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(r.SpecAttributes[key]); v != "" {
			return v
		}
	}
	return ""
}

// Descriptions returns every activity description in a stable order:
// labels sorted, descriptions in their original order.
func (r Record) Descriptions() []string {
	labels := make([]string, 0, len(r.Activities))
	for label := range r.Activities {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var out []string
	for _, label := range labels {
		for _, d := range r.Activities[label] {
			if strings.TrimSpace(d) != "" {
				out = append(out, d)
			}
		}
	}
	return out
}

// ActivityCount returns the number of non-blank activity descriptions
func (r Record) ActivityCount() int {
	return len(r.Descriptions())
}

// UnmarshalJSON decodes a record leniently: fields with an unexpected shape
// are treated as absent instead of failing the whole record.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID             json.RawMessage `json:"id"`
		JobTitle       json.RawMessage `json:"jobTitle"`
		SpecAttributes json.RawMessage `json:"specAttributes"`
		Activities     json.RawMessage `json:"activities"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record{
		ID:             scalarString(raw.ID),
		JobTitle:       strings.TrimSpace(scalarString(raw.JobTitle)),
		SpecAttributes: DecodeAttributes(raw.SpecAttributes),
		Activities:     DecodeActivities(raw.Activities),
	}
	return nil
}

// DecodeAttributes parses a free-form attribute object. Scalar values are
// kept as text, arrays are kept as their JSON encoding, anything else is dropped.
func DecodeAttributes(data []byte) map[string]string {
	attrs := make(map[string]string)
	var fields map[string]json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &fields) != nil {
		return attrs
	}
	for key, value := range fields {
		trimmed := strings.TrimSpace(string(value))
		switch {
		case strings.HasPrefix(trimmed, "["):
			attrs[key] = trimmed
		case trimmed == "null" || strings.HasPrefix(trimmed, "{"):
			continue
		default:
			if s := scalarString(value); s != "" {
				attrs[key] = s
			}
		}
	}
	return attrs
}

// DecodeActivities parses the activity map. A label may hold a list of
// descriptions or a single description.
func DecodeActivities(data []byte) map[string][]string {
	activities := make(map[string][]string)
	var fields map[string]json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &fields) != nil {
		return activities
	}
	for label, value := range fields {
		var list []json.RawMessage
		if err := json.Unmarshal(value, &list); err != nil {
			if s := scalarString(value); s != "" {
				activities[label] = []string{s}
			}
			continue
		}
		for _, item := range list {
			if s := scalarString(item); s != "" {
				activities[label] = append(activities[label], s)
			}
		}
	}
	return activities
}

// scalarString renders a JSON string, number or bool as text
func scalarString(value json.RawMessage) string {
	if len(value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(value, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}
