// Package protocol implements the SAM v3 reply grammar and outbound
// command construction used by the client. See SAMv3.md for the complete
// protocol specification; this package only covers the STREAM-style subset
// the client exercises (HELLO, SESSION CREATE, STREAM ACCEPT/CONNECT, plus
// the DEST GENERATE and NAMING LOOKUP command builders).
package protocol

// SAM Protocol Verbs the client sends or parses replies for.
// DATAGRAM, RAW, PING/PONG and AUTH are out of scope (spec.md §1 Non-goals).
const (
	VerbHello   = "HELLO"
	VerbSession = "SESSION"
	VerbStream  = "STREAM"
	VerbDest    = "DEST"
	VerbNaming  = "NAMING"
)

// SAM Protocol Actions the client sends or parses replies for.
const (
	ActionVersion  = "VERSION"
	ActionReply    = "REPLY"
	ActionStatus   = "STATUS"
	ActionCreate   = "CREATE"
	ActionConnect  = "CONNECT"
	ActionAccept   = "ACCEPT"
	ActionGenerate = "GENERATE"
	ActionLookup   = "LOOKUP"
)

// SAM Result Codes, per spec.md §3 ResultCode enumeration.
const (
	ResultOK               = "OK"
	ResultAlreadyAccepting = "ALREADY_ACCEPTING"
	ResultCantReachPeer    = "CANT_REACH_PEER"
	ResultDuplicatedDest   = "DUPLICATED_DEST"
	ResultDuplicatedID     = "DUPLICATED_ID"
	ResultI2PError         = "I2P_ERROR"
	ResultInvalidKey       = "INVALID_KEY"
	ResultInvalidID        = "INVALID_ID"
	ResultKeyNotFound      = "KEY_NOT_FOUND"
	ResultTimeout          = "TIMEOUT"
	ResultNoVersion        = "NOVERSION"
	ResultFailed           = "FAILED"
)

// StyleStream is the only SAM session style this client supports.
const StyleStream = "STREAM"

// DestinationTransient is the DESTINATION= value that asks the bridge to
// generate a fresh, session-scoped key pair instead of using caller-supplied keys.
const DestinationTransient = "TRANSIENT"

// SAM Default Port.
const DefaultSAMPort = 7656

// Port validation constants.
const (
	MinPort = 0
	MaxPort = 65535
)

// Signature Types per I2P specification.
// All clients should use SigTypeEd25519 (7) for new destinations.
const (
	SigTypeDSA_SHA1          = 0 // Deprecated, do not use.
	SigTypeECDSA_SHA256_P256 = 1
	SigTypeECDSA_SHA384_P384 = 2
	SigTypeECDSA_SHA512_P521 = 3
	SigTypeRSA_SHA256_2048   = 4
	SigTypeRSA_SHA384_3072   = 5
	SigTypeRSA_SHA512_4096   = 6
	SigTypeEd25519           = 7 // Recommended.
	SigTypeEd25519ph         = 8
)

// DefaultSignatureType is Ed25519 per SAM specification recommendation.
const DefaultSignatureType = SigTypeEd25519

// SigTypeUnspecified marks a SessionCreate call as carrying no signature
// type for the destination being used, the Go analogue of the original's
// empty signature_type_if_key string.
const SigTypeUnspecified = -1

// SAM Version constants negotiated in HELLO VERSION MIN=.. MAX=...
const (
	SAMVersionMin = "3.1"
	SAMVersionMax = "3.2"
)
