package remote

import "fmt"

// Raw 16-bit codes sent by the remote, big-endian in the first two bytes of
// every input report notification.
const (
	rawRelease     uint16 = 0x0000
	rawPressUp     uint16 = 0x0006
	rawPressDown   uint16 = 0x0001
	rawPressLeft   uint16 = 0x000B
	rawPressRight  uint16 = 0x000A
	rawRotateRight uint16 = 0x4000
	rawRotateLeft  uint16 = 0x8000
)

// Button identifies one of the four physical buttons.
type Button uint8

const (
	ButtonUp Button = iota
	ButtonDown
	ButtonLeft
	ButtonRight

	buttonCount = 4

	// ButtonNone means "no button currently active".
	ButtonNone Button = 0xFF
)

func (b Button) String() string {
	switch b {
	case ButtonUp:
		return "up"
	case ButtonDown:
		return "down"
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	default:
		return "unknown"
	}
}

// buttonForCode maps a press code to its button, or ButtonNone.
func buttonForCode(raw uint16) Button {
	switch raw {
	case rawPressUp:
		return ButtonUp
	case rawPressDown:
		return ButtonDown
	case rawPressLeft:
		return ButtonLeft
	case rawPressRight:
		return ButtonRight
	default:
		return ButtonNone
	}
}

func isRotation(raw uint16) bool {
	return raw == rawRotateRight || raw == rawRotateLeft
}

// hex4 renders a raw code the way it appears in event payloads: four
// lowercase hex digits, no prefix.
func hex4(v uint16) string {
	return fmt.Sprintf("%04x", v)
}
