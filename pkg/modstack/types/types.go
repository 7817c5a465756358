// Package types holds the vocabulary shared by every modstack package:
// target platforms and byte orders, canonical and nested resource paths,
// error kinds, and size helpers.
package types

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Endian is the byte order of a target platform. The game ships a
// big-endian build (Wii U) and a little-endian build (Switch); every
// native resource is serialized in the order of the deployment target.
type Endian uint8

const (
	// Big is the Wii U byte order.
	Big Endian = iota
	// Little is the Switch byte order.
	Little
)

// String returns the platform name for the byte order.
func (e Endian) String() string {
	switch e {
	case Big:
		return "wiiu"
	case Little:
		return "switch"
	default:
		return fmt.Sprintf("Endian(%d)", uint8(e))
	}
}

// ByteOrder returns the encoding/binary order for e.
func (e Endian) ByteOrder() binary.ByteOrder {
	if e == Little {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// ParseEndian accepts a platform name ("switch", "wiiu") or a byte order
// name ("little", "big").
func ParseEndian(s string) (Endian, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "switch", "nx", "little", "le":
		return Little, nil
	case "wiiu", "cemu", "big", "be":
		return Big, nil
	default:
		return Big, fmt.Errorf("unknown platform %q", s)
	}
}

// ContentRoot is the directory under an output root that holds base-game
// content for the platform.
func (e Endian) ContentRoot() string {
	if e == Little {
		return "01007EF00011E000/romfs"
	}
	return "content"
}

// AocRoot is the directory under an output root that holds DLC content.
func (e Endian) AocRoot() string {
	if e == Little {
		return "01007EF00011F001/romfs"
	}
	return "aoc/0010"
}

// MaxArchiveDepth bounds how many archives may enclose a resource. Two
// levels occur in shipped data; anything deeper is treated as malformed.
const MaxArchiveDepth = 3

// SizeTablePath is the canonical path of the resource size table.
const SizeTablePath = "System/Resource/ResourceSizeTable.product.srsizetable"
