package metadata

// Field types understood by the filter compiler and the payload walker.
const (
	TypeString     = "string"
	TypeText       = "text"
	TypeUUID       = "uuid"
	TypeInteger    = "integer"
	TypeBigInteger = "bigInteger"
	TypeFloat      = "float"
	TypeDecimal    = "decimal"
	TypeBoolean    = "boolean"
	TypeJSON       = "json"
	TypeCSV        = "csv"
	TypeHash       = "hash"
	TypeDate       = "date"
	TypeDateTime   = "dateTime"
	TypeTime       = "time"
	TypeTimestamp  = "timestamp"
	TypeGeometry   = "geometry"
	TypeBinary     = "binary"
	TypeAlias      = "alias"
)

// Special tags.
const (
	SpecialAlias        = "alias"
	SpecialM2M          = "m2m"
	SpecialM2A          = "m2a"
	SpecialO2M          = "o2m"
	SpecialTranslations = "translations"
	SpecialConceal      = "conceal"
	SpecialHash         = "hash"
	SpecialEncrypt      = "encrypt"
)

type Field struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Special  []string `json:"special,omitempty"`
	Nullable bool     `json:"nullable,omitempty"`
}

// HasSpecial reports whether the field carries the given special tag.
func (f *Field) HasSpecial(tag string) bool {
	for _, s := range f.Special {
		if s == tag {
			return true
		}
	}
	return false
}

// IsAlias returns true for virtual fields backed by a relation rather than a column.
func (f *Field) IsAlias() bool {
	return f.Type == TypeAlias || f.HasSpecial(SpecialAlias)
}

func (f *Field) IsJSON() bool {
	return f.Type == TypeJSON
}

// IsConcealed returns true if the field's value must never leave the server.
func (f *Field) IsConcealed() bool {
	return f.Type == TypeHash ||
		f.HasSpecial(SpecialConceal) ||
		f.HasSpecial(SpecialHash) ||
		f.HasSpecial(SpecialEncrypt)
}

// IsDateLike covers every type whose filter values go through date parsing.
func IsDateLike(fieldType string) bool {
	switch fieldType {
	case TypeDate, TypeDateTime, TypeTime, TypeTimestamp:
		return true
	}
	return false
}

func IsNumeric(fieldType string) bool {
	switch fieldType {
	case TypeInteger, TypeBigInteger, TypeFloat, TypeDecimal:
		return true
	}
	return false
}
