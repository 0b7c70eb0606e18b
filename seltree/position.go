package seltree

import (
	"fmt"
	"strings"
)

// Positions address tree nodes. The root is the empty string and every
// child appends one base-36 digit holding its 0-based ordinal among the
// children of its parent, so "01" is the second child of the first child of
// the root.
const digits = "0123456789abcdefghijklmnopqrstuvwxyz"

// MaxChildren is the number of children a node can have.
const MaxChildren = len(digits)

// Root is the position of the root node.
const Root = ""

func childPosition(parent string, ordinal int) (string, error) {
	if ordinal < 0 || ordinal >= MaxChildren {
		return "", fmt.Errorf("%w: ordinal %d under %q", ErrTooManyChildren, ordinal, parent)
	}
	return parent + digits[ordinal:ordinal+1], nil
}

// ValidPosition reports whether pos only contains position digits.
func ValidPosition(pos string) bool {
	for _, r := range pos {
		if !strings.ContainsRune(digits, r) {
			return false
		}
	}
	return true
}

// Depth returns the number of cuts between the root and pos.
func Depth(pos string) int { return len(pos) }

// ParentOf returns the position of the parent of pos.
func ParentOf(pos string) string {
	if pos == Root {
		return Root
	}
	return pos[:len(pos)-1]
}

// matchKind selects how an activation position is compared with the
// position of a newly created node.
type matchKind uint8

const (
	exactMatch matchKind = iota
	prefixMatch
)

var matchers = map[matchKind]func(pos, activation string) bool{
	exactMatch:  func(pos, activation string) bool { return pos == activation },
	prefixMatch: strings.HasPrefix,
}

func (m matchKind) matches(activation, pos string) bool {
	return matchers[m](pos, activation)
}

// HistName returns the name of the instance of a histogram booked at pos.
// Instances at the root keep the base name; deeper ones carry the cut depth
// so a lineage never holds two instances with the same name.
func HistName(base, pos string) string {
	if pos == Root {
		return base
	}
	return fmt.Sprintf("%s_S%d", base, Depth(pos))
}
