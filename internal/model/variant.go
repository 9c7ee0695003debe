package model

import (
	"fmt"
	"strings"
)

// Variant tags one architecture template.
type Variant int

// Variants in declaration order. All is a meta-tag that expands to every
// concrete variant.
const (
	GenericCNN Variant = iota + 1
	AlexNet
	LeNet
	VGG16
	RNN
	All
)

var variantNames = map[Variant]string{
	GenericCNN: "GENERIC_CNN",
	AlexNet:    "ALEXNET",
	LeNet:      "LENET",
	VGG16:      "VGG16",
	RNN:        "RNN",
	All:        "ALL",
}

// String returns the canonical upper-case tag.
func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Concrete reports whether v names a single architecture.
func (v Variant) Concrete() bool {
	return v >= GenericCNN && v <= RNN
}

// ConcreteVariants returns every concrete variant in declaration order.
func ConcreteVariants() []Variant {
	return []Variant{GenericCNN, AlexNet, LeNet, VGG16, RNN}
}

// ParseVariant parses a tag case-insensitively. "CNN" is accepted for
// GENERIC_CNN and '-' for '_'.
func ParseVariant(s string) (Variant, error) {
	tag := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	if tag == "CNN" {
		return GenericCNN, nil
	}
	for v, name := range variantNames {
		if name == tag {
			return v, nil
		}
	}
	return 0, &ConfigurationError{Field: "variant", Value: s, Err: ErrUnknownVariant}
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
