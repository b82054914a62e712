package protocol

import (
	"errors"
	"strings"
)

// Parser errors.
var ErrUnknownReply = errors.New("unrecognized reply verb/action")

// Parse splits a single SAM reply line into a ReplyMessage.
//
// The grammar is VERB ACTION [KEY=VALUE]... tokenized on single spaces. A
// line with fewer than two tokens yields a ReplyMessage with Kind ==
// KindUnknown rather than an error, per the reply grammar: an
// unrecognized reply is a value the caller inspects, not a parse failure.
//
// Unlike the bridge-side command parser, this parser does not understand
// quoted values: a MESSAGE="some text" field is split at the first space
// inside the quotes, so Fields["MESSAGE"] ends up holding only "some.
// This mirrors a known limitation of the reference implementation and is
// preserved deliberately rather than fixed, since callers only ever
// inspect MESSAGE for logging, never for control flow.
func Parse(line string) (*ReplyMessage, error) {
	line = strings.TrimRight(line, "\r\n")

	tokens := strings.Split(line, " ")
	if len(tokens) < 2 {
		return &ReplyMessage{Kind: KindUnknown, Fields: make(map[string]string), Raw: line}, nil
	}

	msg := &ReplyMessage{
		Verb:   strings.ToUpper(tokens[0]),
		Action: strings.ToUpper(tokens[1]),
		Fields: make(map[string]string),
		Raw:    line,
	}

	for _, tok := range tokens[2:] {
		if tok == "" {
			continue
		}
		key, value, found := strings.Cut(tok, "=")
		if !found {
			continue
		}
		msg.Fields[strings.ToUpper(key)] = value
	}

	msg.Kind = classify(msg.Verb, msg.Action)
	if msg.Kind == KindDestReply {
		inferDestReplyResult(msg)
	}
	return msg, nil
}

// inferDestReplyResult fills in RESULT for a DEST REPLY, which (unlike every
// other reply kind) carries no RESULT field on success: a successful
// DEST GENERATE only ever returns PUB= and PRIV=. RESULT=I2P_ERROR, when
// present, is always the verdict; otherwise the reply is OK exactly when
// both PUB and PRIV are non-empty, and FAILED otherwise.
func inferDestReplyResult(msg *ReplyMessage) {
	if msg.Fields["RESULT"] == ResultI2PError {
		return
	}
	if msg.Fields["PUB"] != "" && msg.Fields["PRIV"] != "" {
		msg.Fields["RESULT"] = ResultOK
	} else {
		msg.Fields["RESULT"] = ResultFailed
	}
}

// classify maps a VERB/ACTION pair to the Kind the client expects to see
// for each command it can send. An unrecognized pair is not an error by
// itself; the caller decides whether an unexpected reply kind is fatal.
func classify(verb, action string) Kind {
	switch {
	case verb == VerbHello && action == ActionReply:
		return KindHelloReply
	case verb == VerbSession && action == ActionStatus:
		return KindSessionStatus
	case verb == VerbStream && action == ActionStatus:
		return KindStreamStatus
	case verb == VerbNaming && action == ActionReply:
		return KindNamingReply
	case verb == VerbDest && action == ActionReply:
		return KindDestReply
	default:
		return KindUnknown
	}
}
