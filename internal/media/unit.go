package media

import "strconv"

// Unit is one encoded output unit produced by an engine.
type Unit struct {
	Data     []byte
	PTS      int64 // first sample, in samples at the engine's sample rate
	Duration int   // samples per channel covered by Data
}

// PayloadType is the RTP payload type the stage's output is sent with.
type PayloadType uint8

// Static assignments from RFC 3551 plus the dynamic values the gateway uses.
const (
	PayloadTypePCMU      PayloadType = 0
	PayloadTypePCMA      PayloadType = 8
	PayloadTypeG722      PayloadType = 9
	PayloadTypeL16Stereo PayloadType = 10
	PayloadTypeL16Mono   PayloadType = 11
	PayloadTypeAAC       PayloadType = 97
	PayloadTypeOpus      PayloadType = 111

	// PayloadTypeNone marks a stage whose output is not sent over RTP.
	PayloadTypeNone PayloadType = 0xff
)

// Valid reports whether the value fits the 7-bit RTP field.
func (pt PayloadType) Valid() bool {
	return pt <= 127
}

func (pt PayloadType) String() string {
	switch pt {
	case PayloadTypePCMU:
		return "PCMU"
	case PayloadTypePCMA:
		return "PCMA"
	case PayloadTypeG722:
		return "G722"
	case PayloadTypeL16Stereo, PayloadTypeL16Mono:
		return "L16"
	case PayloadTypeAAC:
		return "AAC"
	case PayloadTypeOpus:
		return "opus"
	case PayloadTypeNone:
		return "none"
	default:
		return "dynamic(" + strconv.Itoa(int(pt)) + ")"
	}
}
