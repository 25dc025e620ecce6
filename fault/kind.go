package fault

// Kind is the closed set of failure categories surfaced by the pipeline.
type Kind int

const (
	KindConnectionFailure Kind = iota + 1
	KindTimeout
	KindServerRejected
	KindCancelled
	KindInvalidRequest
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConnectionFailure:
		return "connection_failure"
	case KindTimeout:
		return "timeout"
	case KindServerRejected:
		return "server_rejected"
	case KindCancelled:
		return "cancelled"
	case KindInvalidRequest:
		return "invalid_request"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Transient reports whether a failure of this kind may succeed when repeated.
func (k Kind) Transient() bool {
	return k == KindConnectionFailure || k == KindTimeout
}

// CommitStatus mirrors the node's transaction commit outcomes.
type CommitStatus int

const (
	StatusOK CommitStatus = iota
	StatusNonceTooLow
	StatusTxAlreadyExists
	StatusTxInvalidHash
	StatusTxInvalidSignature
	StatusTxInvalidFormat
	StatusInsufficientBalance
	StatusTxHasSameNonce
	StatusInternalError
	StatusUnrecognized
)

var statusNames = map[CommitStatus]string{
	StatusOK:                  "OK",
	StatusNonceTooLow:         "NONCE_TOO_LOW",
	StatusTxAlreadyExists:     "TX_ALREADY_EXISTS",
	StatusTxInvalidHash:       "TX_INVALID_HASH",
	StatusTxInvalidSignature:  "TX_INVALID_SIGNATURE",
	StatusTxInvalidFormat:     "TX_INVALID_FORMAT",
	StatusInsufficientBalance: "INSUFFICIENT_BALANCE",
	StatusTxHasSameNonce:      "TX_HAS_SAME_NONCE",
	StatusInternalError:       "INTERNAL_ERROR",
	StatusUnrecognized:        "UNRECOGNIZED",
}

func (s CommitStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[StatusUnrecognized]
}

// StatusFromCode maps a node commit result code. Unknown codes map to StatusUnrecognized.
func StatusFromCode(code int32) CommitStatus {
	switch code {
	case 0:
		return StatusOK
	case 1:
		return StatusNonceTooLow
	case 2:
		return StatusTxAlreadyExists
	case 3:
		return StatusTxInvalidHash
	case 4:
		return StatusTxInvalidSignature
	case 5:
		return StatusTxInvalidFormat
	case 6:
		return StatusInsufficientBalance
	case 7:
		return StatusTxHasSameNonce
	case 9:
		return StatusInternalError
	default:
		return StatusUnrecognized
	}
}

// StatusFromName maps a node commit status name such as "NONCE_TOO_LOW".
// The node also reports names with a "TX_" prefix on some statuses; both forms are accepted.
func StatusFromName(name string) CommitStatus {
	for s, n := range statusNames {
		if n == name || "TX_"+n == name {
			return s
		}
	}
	switch name {
	case "TX_INVALID_SIGN":
		return StatusTxInvalidSignature
	case "TX_INSUFFICIENT_BALANCE":
		return StatusInsufficientBalance
	case "TX_INTERNAL_ERROR":
		return StatusInternalError
	}
	return StatusUnrecognized
}
