package codec

import "errors"

// Decode/Encode error kinds. Ref: SPEC_FULL.md §4.2, §4.3
var (
	ErrInvalidLen            = errors.New("codec: invalid frame length")
	ErrInvalidCRC            = errors.New("codec: invalid CRC")
	ErrInvalidSlaveID        = errors.New("codec: invalid slave id")
	ErrInvalidFC             = errors.New("codec: invalid or unsupported function code")
	ErrInvalidRegCount       = errors.New("codec: register/coil count out of range")
	ErrInvalidException      = errors.New("codec: exception code on a request")
	ErrInvalidType           = errors.New("codec: message type not declared or unrecognized")
	ErrInvalidMBAPProtocolID = errors.New("codec: MBAP protocol id must be 0")
	ErrInvalidMBAPLen        = errors.New("codec: MBAP length field disagrees with buffer or frame exceeds maximum")
)
