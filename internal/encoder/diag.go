package encoder

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MessageCode identifies a diagnostic emitted by the stage. The code is
// attached to every log entry so operators can filter on it.
type MessageCode int

const (
	MsgEncoderNotFound MessageCode = iota + 1
	MsgContextAllocFailed
	MsgCodecOpenFailed
	MsgEncoderInitSuccess
	MsgUnsupportedFormat
	MsgEncodeFailed
	MsgDrainFailed
	MsgEngineCloseFailed
	MsgSinkFailed
	MsgEngineDiscarded
)

func (c MessageCode) String() string {
	switch c {
	case MsgEncoderNotFound:
		return "encoder not found"
	case MsgContextAllocFailed:
		return "codec context alloc failed"
	case MsgCodecOpenFailed:
		return "codec open failed"
	case MsgEncoderInitSuccess:
		return "encoder init success"
	case MsgUnsupportedFormat:
		return "unsupported input format"
	case MsgEncodeFailed:
		return "encode failed"
	case MsgDrainFailed:
		return "drain failed"
	case MsgEngineCloseFailed:
		return "engine close failed"
	case MsgSinkFailed:
		return "sink rejected unit"
	case MsgEngineDiscarded:
		return "engine discarded"
	default:
		return "unknown"
	}
}

// diag writes one diagnostic. api names the component that raised it.
func diag(log *zap.Logger, lvl zapcore.Level, code MessageCode, api string, fields ...zap.Field) {
	ce := log.Check(lvl, code.String())
	if ce == nil {
		return
	}
	ce.Write(append([]zap.Field{zap.Int("code", int(code)), zap.String("api", api)}, fields...)...)
}
