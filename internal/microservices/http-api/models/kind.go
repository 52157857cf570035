package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Kind is the closed set of notification categories.
type Kind string

const (
	KindSystem       Kind = "SYSTEM"
	KindMessage      Kind = "MESSAGE"
	KindAnnouncement Kind = "ANNOUNCEMENT"
	KindAlert        Kind = "ALERT"
	KindWarning      Kind = "WARNING"
	KindSuccess      Kind = "SUCCESS"
	KindInfo         Kind = "INFO"
)

// Kinds lists every valid kind, in display order.
var Kinds = []Kind{
	KindSystem,
	KindMessage,
	KindAnnouncement,
	KindAlert,
	KindWarning,
	KindSuccess,
	KindInfo,
}

// ParseKind normalizes s to upper case and rejects anything outside the enum.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown notification kind %q", s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case KindSystem, KindMessage, KindAnnouncement, KindAlert, KindWarning, KindSuccess, KindInfo:
		return true
	}
	return false
}

// Protected reports whether only a super-administrator may delete notifications of this kind.
func (k Kind) Protected() bool {
	switch k {
	case KindSystem:
		return true
	case KindMessage, KindAnnouncement, KindAlert, KindWarning, KindSuccess, KindInfo:
		return false
	}
	return false
}

// AdminOnly reports whether the kind is hidden from non-super-administrator viewers.
func (k Kind) AdminOnly() bool {
	return k.Protected()
}

func (k Kind) String() string {
	return string(k)
}

// Value stores the kind in its canonical upper-case form.
func (k Kind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid notification kind %q", string(k))
	}
	return string(k), nil
}

// Scan accepts rows written with any casing.
func (k *Kind) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Kind", src)
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
