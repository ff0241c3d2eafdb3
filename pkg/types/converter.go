// Package types converts native Go values to and from DynamoDB AttributeValues.
//
// Unlike a reflection-driven struct marshaler, this converter works on the
// small vocabulary of values that appear in parsed query conditions and
// record data: scalars, byte slices, lists, string-keyed maps, and the
// explicit set types declared here.
package types

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	bkerrors "github.com/tnijboer/clearskies-aws/pkg/errors"
)

// StringSet marks a slice of strings for encoding as a DynamoDB SS attribute.
type StringSet []string

// NumberSet marks a slice of numeric strings for encoding as a DynamoDB NS attribute.
type NumberSet []string

// BinarySet marks a slice of byte buffers for encoding as a DynamoDB BS attribute.
type BinarySet [][]byte

// Set is an untyped set whose member kind is sniffed at encoding time.
// Members must be non-empty and homogeneous: all strings, all numerics,
// or all byte slices.
type Set []any

// Converter handles conversion between native values and DynamoDB AttributeValues
type Converter struct {
	log *logrus.Logger
}

// NewConverter creates a new value converter logging through the standard logger
func NewConverter() *Converter {
	return NewConverterWithLogger(logrus.StandardLogger())
}

// NewConverterWithLogger creates a new value converter with an explicit logger
func NewConverterWithLogger(log *logrus.Logger) *Converter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Converter{log: log}
}

// ToAttributeValue converts a native value into a DynamoDB AttributeValue.
//
// Strings are sniffed: "true"/"false" and "null" (case-insensitively) become
// BOOL and NULL attributes, numeric text becomes an N attribute, and anything
// else is carried verbatim as an S attribute. Booleans are checked before
// numerics so they are never collapsed to 0/1.
func (c *Converter) ToAttributeValue(value any) (ddbtypes.AttributeValue, error) {
	switch v := value.(type) {
	case nil:
		return &ddbtypes.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return c.stringToAttributeValue(v), nil
	case bool:
		return &ddbtypes.AttributeValueMemberBOOL{Value: v}, nil
	case int:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}, nil
	case int8:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}, nil
	case int16:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}, nil
	case int32:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}, nil
	case int64:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}, nil
	case uint:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(uint64(v), 10)}, nil
	case uint8:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(uint64(v), 10)}, nil
	case uint16:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(uint64(v), 10)}, nil
	case uint32:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(uint64(v), 10)}, nil
	case uint64:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(v, 10)}, nil
	case float32:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatFloat(float64(v), 'f', -1, 32)}, nil
	case float64:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}, nil
	case Number:
		return c.numberToAttributeValue(v)
	case *big.Rat:
		if v == nil {
			return &ddbtypes.AttributeValueMemberNULL{Value: true}, nil
		}
		return &ddbtypes.AttributeValueMemberN{Value: ratToDecimalString(v)}, nil
	case []byte:
		return &ddbtypes.AttributeValueMemberB{Value: v}, nil
	case StringSet:
		return c.stringSetToAttributeValue(v)
	case NumberSet:
		return c.numberSetToAttributeValue(v)
	case BinarySet:
		return c.binarySetToAttributeValue(v)
	case Set:
		return c.setToAttributeValue(v)
	case []any:
		return c.listToAttributeValue(v)
	case map[string]any:
		return c.mapToAttributeValue(v)
	case ddbtypes.AttributeValue:
		// Already on the wire format; pass through untouched.
		return v, nil
	default:
		return nil, fmt.Errorf("%w: cannot convert %T to a DynamoDB attribute value", bkerrors.ErrUnsupportedType, value)
	}
}

func (c *Converter) stringToAttributeValue(value string) ddbtypes.AttributeValue {
	switch strings.ToLower(value) {
	case "true":
		return &ddbtypes.AttributeValueMemberBOOL{Value: true}
	case "false":
		return &ddbtypes.AttributeValueMemberBOOL{Value: false}
	case "null":
		return &ddbtypes.AttributeValueMemberNULL{Value: true}
	}

	if isInteger(value) {
		return &ddbtypes.AttributeValueMemberN{Value: canonicalInteger(value)}
	}
	if canonical, ok := canonicalDecimal(value); ok {
		return &ddbtypes.AttributeValueMemberN{Value: canonical}
	}

	return &ddbtypes.AttributeValueMemberS{Value: value}
}

func (c *Converter) numberToAttributeValue(n Number) (ddbtypes.AttributeValue, error) {
	if isInteger(string(n)) {
		return &ddbtypes.AttributeValueMemberN{Value: canonicalInteger(string(n))}, nil
	}
	canonical, ok := canonicalDecimal(string(n))
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a valid number", bkerrors.ErrUnsupportedType, string(n))
	}
	return &ddbtypes.AttributeValueMemberN{Value: canonical}, nil
}

func (c *Converter) listToAttributeValue(values []any) (ddbtypes.AttributeValue, error) {
	list := make([]ddbtypes.AttributeValue, 0, len(values))
	for _, item := range values {
		av, err := c.ToAttributeValue(item)
		if err != nil {
			return nil, err
		}
		list = append(list, av)
	}
	return &ddbtypes.AttributeValueMemberL{Value: list}, nil
}

func (c *Converter) mapToAttributeValue(values map[string]any) (ddbtypes.AttributeValue, error) {
	m := make(map[string]ddbtypes.AttributeValue, len(values))
	for key, item := range values {
		av, err := c.ToAttributeValue(item)
		if err != nil {
			return nil, err
		}
		m[key] = av
	}
	return &ddbtypes.AttributeValueMemberM{Value: m}, nil
}

func (c *Converter) stringSetToAttributeValue(set StringSet) (ddbtypes.AttributeValue, error) {
	if len(set) == 0 {
		return nil, bkerrors.ErrEmptySet
	}
	members := dedupeStrings(set)
	sort.Strings(members)
	return &ddbtypes.AttributeValueMemberSS{Value: members}, nil
}

func (c *Converter) numberSetToAttributeValue(set NumberSet) (ddbtypes.AttributeValue, error) {
	if len(set) == 0 {
		return nil, bkerrors.ErrEmptySet
	}

	members := make([]string, 0, len(set))
	for _, raw := range set {
		if isInteger(raw) {
			members = append(members, canonicalInteger(raw))
			continue
		}
		canonical, ok := canonicalDecimal(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a valid number-set member", bkerrors.ErrMixedSet, raw)
		}
		members = append(members, canonical)
	}
	members = dedupeStrings(members)
	sortNumericStrings(members)
	return &ddbtypes.AttributeValueMemberNS{Value: members}, nil
}

func (c *Converter) binarySetToAttributeValue(set BinarySet) (ddbtypes.AttributeValue, error) {
	if len(set) == 0 {
		return nil, bkerrors.ErrEmptySet
	}

	// Sort on the base64 text form so encoding order is stable.
	members := make([][]byte, len(set))
	copy(members, set)
	sort.Slice(members, func(i, j int) bool {
		return base64.StdEncoding.EncodeToString(members[i]) < base64.StdEncoding.EncodeToString(members[j])
	})
	return &ddbtypes.AttributeValueMemberBS{Value: members}, nil
}

// setToAttributeValue sniffs the member kind of an untyped set. Members must be
// homogeneous; mixing strings with numbers, or anything else, is an error.
func (c *Converter) setToAttributeValue(set Set) (ddbtypes.AttributeValue, error) {
	if len(set) == 0 {
		return nil, bkerrors.ErrEmptySet
	}

	strMembers := make(StringSet, 0, len(set))
	numMembers := make(NumberSet, 0, len(set))
	binMembers := make(BinarySet, 0, len(set))

	for _, member := range set {
		switch v := member.(type) {
		case string:
			strMembers = append(strMembers, v)
		case int:
			numMembers = append(numMembers, strconv.FormatInt(int64(v), 10))
		case int64:
			numMembers = append(numMembers, strconv.FormatInt(v, 10))
		case float64:
			numMembers = append(numMembers, strconv.FormatFloat(v, 'f', -1, 64))
		case Number:
			numMembers = append(numMembers, string(v))
		case []byte:
			binMembers = append(binMembers, v)
		default:
			return nil, fmt.Errorf("%w: %T is not a valid set member", bkerrors.ErrMixedSet, member)
		}
	}

	switch {
	case len(strMembers) == len(set):
		return c.stringSetToAttributeValue(strMembers)
	case len(numMembers) == len(set):
		return c.numberSetToAttributeValue(numMembers)
	case len(binMembers) == len(set):
		return c.binarySetToAttributeValue(binMembers)
	}
	return nil, bkerrors.ErrMixedSet
}

// FromAttributeValue converts a DynamoDB AttributeValue back into a native value.
//
// Numbers decode to the decimal-precise Number type, never to a float. A nil
// or unrecognized attribute value is passed through unchanged with a warning,
// so rows carrying tags this package predates do not break the read path.
func (c *Converter) FromAttributeValue(av ddbtypes.AttributeValue) any {
	switch v := av.(type) {
	case *ddbtypes.AttributeValueMemberS:
		return v.Value
	case *ddbtypes.AttributeValueMemberN:
		return Number(v.Value)
	case *ddbtypes.AttributeValueMemberBOOL:
		return v.Value
	case *ddbtypes.AttributeValueMemberNULL:
		return nil
	case *ddbtypes.AttributeValueMemberB:
		return v.Value
	case *ddbtypes.AttributeValueMemberL:
		list := make([]any, 0, len(v.Value))
		for _, item := range v.Value {
			list = append(list, c.FromAttributeValue(item))
		}
		return list
	case *ddbtypes.AttributeValueMemberM:
		m := make(map[string]any, len(v.Value))
		for key, item := range v.Value {
			m[key] = c.FromAttributeValue(item)
		}
		return m
	case *ddbtypes.AttributeValueMemberSS:
		return StringSet(append([]string(nil), v.Value...))
	case *ddbtypes.AttributeValueMemberNS:
		return NumberSet(append([]string(nil), v.Value...))
	case *ddbtypes.AttributeValueMemberBS:
		set := make(BinarySet, len(v.Value))
		for i, b := range v.Value {
			set[i] = b
		}
		return set
	default:
		c.log.WithField("attribute_value", fmt.Sprintf("%T", av)).
			Warn("Unrecognized DynamoDB attribute type; passing through unchanged")
		return av
	}
}

// FromItem converts a full DynamoDB item into a native map.
func (c *Converter) FromItem(item map[string]ddbtypes.AttributeValue) map[string]any {
	record := make(map[string]any, len(item))
	for key, av := range item {
		record[key] = c.FromAttributeValue(av)
	}
	return record
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// sortNumericStrings orders numeric strings by value, falling back to a
// lexicographic comparison for any member that fails to parse.
func sortNumericStrings(values []string) {
	sort.Slice(values, func(i, j int) bool {
		ri, iok := new(big.Rat).SetString(values[i])
		rj, jok := new(big.Rat).SetString(values[j])
		if iok && jok {
			return ri.Cmp(rj) < 0
		}
		return values[i] < values[j]
	})
}
