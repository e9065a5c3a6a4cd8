package models

import (
	"strings"
)

// legacy spellings of the central pool found in imported data
var centralTokens = map[string]struct{}{
	"SOLV-IT": {},
	"CENTRAL": {},
}

// Location is either the central pool or a device serial. Stored as two columns so a
// record's role never depends on string comparison against a reserved name.
type Location struct {
	Kind     LocationKind `gorm:"column:location_kind;type:varchar(16);index:idx_component_key,priority:3;not null" json:"location_kind"`
	SerialNo string       `gorm:"column:serial_no;size:100;index:idx_component_key,priority:4" json:"serial_no"`
}

func Central() Location {
	return Location{Kind: LocationKindCentral}
}

func DeviceLocation(serial string) Location {
	return Location{Kind: LocationKindDevice, SerialNo: NormalizeSerial(serial)}
}

func NormalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}

// ParseLocation maps raw input to a Location. Empty input is rejected; legacy central
// tokens map to Central.
func ParseLocation(raw string) (Location, error) {
	s := NormalizeSerial(raw)
	if s == "" {
		return Location{}, &ValidationError{Field: "location", Reason: "location is required"}
	}
	if _, ok := centralTokens[s]; ok {
		return Central(), nil
	}
	return Location{Kind: LocationKindDevice, SerialNo: s}, nil
}

func (l Location) IsCentral() bool {
	return l.Kind == LocationKindCentral
}

func (l Location) IsDevice() bool {
	return l.Kind == LocationKindDevice && l.SerialNo != ""
}

func (l Location) Equal(o Location) bool {
	return l.Kind == o.Kind && l.SerialNo == o.SerialNo
}

func (l Location) String() string {
	if l.IsCentral() {
		return "central"
	}
	return l.SerialNo
}

// ValidateField checks a location built outside ParseLocation, reporting failures against field.
func (l Location) ValidateField(field string) error {
	switch l.Kind {
	case LocationKindCentral:
		if l.SerialNo != "" {
			return &ValidationError{Field: field, Reason: "central location cannot carry a serial"}
		}
		return nil
	case LocationKindDevice:
		if l.SerialNo == "" || l.SerialNo != NormalizeSerial(l.SerialNo) {
			return &ValidationError{Field: field, Reason: "device serial must be non-empty and upper case"}
		}
		return nil
	}
	return &ValidationError{Field: field, Reason: "unknown location kind"}
}
