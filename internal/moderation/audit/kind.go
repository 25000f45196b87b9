package audit

// Kind is the type of a moderation action.
//
//go:generate go tool enumer -type=Kind -trimprefix=Kind -transform=lower
type Kind int

const (
	KindKick Kind = iota
	KindBan
	KindMute
	KindUnmute
)

// Title returns the heading used for audit records.
func (k Kind) Title() string {
	switch k {
	case KindKick:
		return "Member Kicked"
	case KindBan:
		return "Member Banned"
	case KindMute:
		return "Member Muted"
	case KindUnmute:
		return "Member Unmuted"
	default:
		return k.String()
	}
}

// Color returns the embed color for the kind.
func (k Kind) Color() int {
	switch k {
	case KindKick:
		return 0xE67E22
	case KindBan:
		return 0xE74C3C
	case KindMute:
		return 0x95A5A6
	case KindUnmute:
		return 0x2ECC71
	default:
		return 0x5865F2
	}
}
