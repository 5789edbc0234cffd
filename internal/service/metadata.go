package service

import (
	"strconv"
	"strings"
)

const metadataSeparator = "|"

// ItemRef identifies what is paid for and by whom.
type ItemRef struct {
	Component   string
	PaymentArea string
	ItemID      uint
	UserID      uint
}

// EncodeMetadata builds the component|paymentarea|itemid|userid string attached to a
// remote payment.
func EncodeMetadata(ref ItemRef) string {
	return strings.Join([]string{
		ref.Component,
		ref.PaymentArea,
		strconv.FormatUint(uint64(ref.ItemID), 10),
		strconv.FormatUint(uint64(ref.UserID), 10),
	}, metadataSeparator)
}

// DecodeMetadata parses a metadata string. Anything other than four parts with numeric
// item and user ids is a metadata ValidationError.
func DecodeMetadata(raw string) (ItemRef, error) {
	parts := strings.Split(raw, metadataSeparator)
	if len(parts) != 4 {
		return ItemRef{}, &ValidationError{Field: FieldMetadata}
	}
	itemID, err := strconv.ParseUint(parts[2], 10, 0)
	if err != nil {
		return ItemRef{}, &ValidationError{Field: FieldMetadata}
	}
	userID, err := strconv.ParseUint(parts[3], 10, 0)
	if err != nil {
		return ItemRef{}, &ValidationError{Field: FieldMetadata}
	}
	return ItemRef{
		Component:   parts[0],
		PaymentArea: parts[1],
		ItemID:      uint(itemID),
		UserID:      uint(userID),
	}, nil
}

func ToolTag(version string) string {
	return "paygw_mollie-v" + version
}
