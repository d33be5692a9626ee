package lib

import (
	"fmt"
	"math"
)

type ErrorI interface {
	Code() ErrorCode     // numeric identity of the error
	Module() ErrorModule // subsystem the error originated from
	error                // implements the built-in error interface
}

var _ ErrorI = &Error{} // ensures *Error implements ErrorI

type ErrorCode uint32 // Defines a type for error codes

type ErrorModule string // Defines a type for error modules

type Error struct {
	ECode   ErrorCode   `json:"code"`   // Error code
	EModule ErrorModule `json:"module"` // Error module
	Msg     string      `json:"msg"`    // Error message
}

func NewError(code ErrorCode, module ErrorModule, msg string) *Error {
	return &Error{ECode: code, EModule: module, Msg: msg}
}

// Code() returns the associated error code
func (p *Error) Code() ErrorCode { return p.ECode }

// Module() returns the associated error module
func (p *Error) Module() ErrorModule { return p.EModule }

// String() calls Error()
func (p *Error) String() string { return p.Error() }

// Error() returns a formatted string including module, code and message
func (p *Error) Error() string {
	return fmt.Sprintf("\nModule:  %s\nCode:    %d\nMessage: %s", p.EModule, p.ECode, p.Msg)
}

const (
	NoCode ErrorCode = math.MaxUint32

	// Main Module
	MainModule ErrorModule = "main"

	// Main Module Error Codes
	CodeMarshal        ErrorCode = 1
	CodeUnmarshal      ErrorCode = 2
	CodeJSONMarshal    ErrorCode = 3
	CodeJSONUnmarshal  ErrorCode = 4
	CodeWriteFile      ErrorCode = 5
	CodeReadFile       ErrorCode = 6
	CodeInvalidAddress ErrorCode = 7
	CodeWrongLengthKey ErrorCode = 8
	CodeNilPeer        ErrorCode = 9

	// Consensus Module
	ConsensusModule ErrorModule = "consensus"

	// Consensus Module Error Codes
	CodeEmptyVoteBundle ErrorCode = 1
	CodeMixedRounds     ErrorCode = 2
	CodeNoSubscriber    ErrorCode = 3
	CodeMalformedVote   ErrorCode = 4

	// Ordering Module
	OrderingModule ErrorModule = "ordering"

	// Ordering Module Error Codes
	CodeEmptyPeerList  ErrorCode = 1
	CodeNoIssuer       ErrorCode = 2
	CodeBadInitialHash ErrorCode = 3

	// P2P Module
	P2PModule ErrorModule = "p2p"

	// P2P Module Error Codes
	CodeFailedRead        ErrorCode = 1
	CodeFailedWrite       ErrorCode = 2
	CodeMaxMessageSize    ErrorCode = 3
	CodeErrorGroup        ErrorCode = 4
	CodeConnDecrypt       ErrorCode = 5
	CodeSharedSecret      ErrorCode = 6
	CodeFailedHKDF        ErrorCode = 7
	CodeFailedChallenge   ErrorCode = 8
	CodeBlacklisted       ErrorCode = 9
	CodePeerNotFound      ErrorCode = 10
	CodeFailedDial        ErrorCode = 11
	CodeFailedListen      ErrorCode = 12
	CodeOutboxFull        ErrorCode = 13
	CodeUnknownTopic      ErrorCode = 14
	CodeConnectionResolve ErrorCode = 15
	CodeMismatchIdentity  ErrorCode = 16
	CodeConnPanic         ErrorCode = 17

	// Config Module
	ConfigModule ErrorModule = "config"

	// Config Module Error Codes
	CodeBadLogLevel    ErrorCode = 1
	CodeBadListenAddr  ErrorCode = 2
	CodeBadMaxMsgBytes ErrorCode = 3
	CodeBadDelayParams ErrorCode = 4
)

func ErrMarshal(err error) ErrorI {
	return NewError(CodeMarshal, MainModule, fmt.Sprintf("marshal() failed with err: %s", err.Error()))
}

func ErrUnmarshal(err error) ErrorI {
	return NewError(CodeUnmarshal, MainModule, fmt.Sprintf("unmarshal() failed with err: %s", err.Error()))
}

func ErrJSONMarshal(err error) ErrorI {
	return NewError(CodeJSONMarshal, MainModule, fmt.Sprintf("json.marshal() failed with err: %s", err.Error()))
}

func ErrJSONUnmarshal(err error) ErrorI {
	return NewError(CodeJSONUnmarshal, MainModule, fmt.Sprintf("json.unmarshal() failed with err: %s", err.Error()))
}

func ErrWriteFile(err error) ErrorI {
	return NewError(CodeWriteFile, MainModule, fmt.Sprintf("os.WriteFile() failed with err: %s", err.Error()))
}

func ErrReadFile(err error) ErrorI {
	return NewError(CodeReadFile, MainModule, fmt.Sprintf("os.ReadFile() failed with err: %s", err.Error()))
}

func ErrInvalidNetAddress(address string) ErrorI {
	return NewError(CodeInvalidAddress, MainModule, fmt.Sprintf("invalid net address: %s", address))
}

func ErrWrongLengthPubKey() ErrorI {
	return NewError(CodeWrongLengthKey, MainModule, "public key has the wrong length")
}

func ErrNilPeer() ErrorI {
	return NewError(CodeNilPeer, MainModule, "peer is nil")
}

func ErrBadLogLevel(level string) ErrorI {
	return NewError(CodeBadLogLevel, ConfigModule, fmt.Sprintf("log level %q is not a known level", level))
}

func ErrBadListenAddress(address string) ErrorI {
	return NewError(CodeBadListenAddr, ConfigModule, fmt.Sprintf("listen address %q is not usable", address))
}

func ErrBadMaxMessageBytes(n int64) ErrorI {
	return NewError(CodeBadMaxMsgBytes, ConfigModule, fmt.Sprintf("max message bytes %d is out of range", n))
}

func ErrBadDelayParams(maxMS uint64) ErrorI {
	return NewError(CodeBadDelayParams, ConfigModule, fmt.Sprintf("round delay of %dms is out of range", maxMS))
}

func ErrBadInitialHash(hexString string) ErrorI {
	return NewError(CodeBadInitialHash, OrderingModule, fmt.Sprintf("initial hash %q is not a valid digest", hexString))
}

func ErrWrongInitialHashCount(n int) ErrorI {
	return NewError(CodeBadInitialHash, OrderingModule, fmt.Sprintf("expected 2 initial hashes, got %d", n))
}
