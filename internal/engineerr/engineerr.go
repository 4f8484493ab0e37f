// Package engineerr is the structured error vocabulary shared by every
// component of the engine: manifest parsing, resolution, source drivers,
// the store, the linker, and the patch subsystem each report failures
// through the same Category/Code/Error shape so callers can branch on
// `errors.As` instead of string-matching messages.
package engineerr

import (
	"fmt"
	"runtime"
)

// Category groups related error codes the way callers usually want to
// branch: "is this a resolution failure, an auth failure, a transient
// network failure, or a local integrity failure?"
type Category string

const (
	CategoryManifest   Category = "MANIFEST"
	CategoryResolution Category = "RESOLUTION"
	CategorySource     Category = "SOURCE"
	CategoryIntegrity  Category = "INTEGRITY"
	CategoryState      Category = "STATE"
)

// Code is a stable, registered identifier within a Category. Registering
// codes up front (rather than inventing ad hoc strings at each call site)
// catches typos and duplicate codes at init time.
type Code string

const (
	CodeManifestParseError Code = "MANIFEST_PARSE_ERROR"
	CodeManifestInvalid    Code = "MANIFEST_INVALID"

	CodeUnsatisfiableConstraint Code = "UNSATISFIABLE_CONSTRAINT"
	CodeMissingPeer             Code = "MISSING_PEER"
	CodePeerConflict            Code = "PEER_CONFLICT"
	CodeIncompatibleTarget      Code = "INCOMPATIBLE_TARGET"
	CodeCycleDetected           Code = "CYCLE_DETECTED"
	CodeOverrideAmbiguous       Code = "OVERRIDE_AMBIGUOUS"

	CodeNotFound        Code = "NOT_FOUND"
	CodeAuthRequired    Code = "AUTH_REQUIRED"
	CodeAuthInvalid     Code = "AUTH_INVALID"
	CodeNetworkTransient Code = "NETWORK_TRANSIENT"
	CodeNetworkFatal    Code = "NETWORK_FATAL"

	CodeDigestMismatch  Code = "DIGEST_MISMATCH"
	CodeTarballMalformed Code = "TARBALL_MALFORMED"
	CodePathEscape      Code = "PATH_ESCAPE"
	CodeSizeExceeded    Code = "SIZE_EXCEEDED"

	CodeLockfileOutdated Code = "LOCKFILE_OUTDATED"
	CodeProjectBusy      Code = "PROJECT_BUSY"
	CodePatchApplyFailed Code = "PATCH_APPLY_FAILED"
)

type codeInfo struct {
	category Category
	retry    bool
}

var registry = map[Code]codeInfo{}

func register(code Code, category Category, retry bool) Code {
	if _, dup := registry[code]; dup {
		panic("engineerr: duplicate code registration: " + string(code))
	}

	registry[code] = codeInfo{category: category, retry: retry}

	return code
}

func init() {
	register(CodeManifestParseError, CategoryManifest, false)
	register(CodeManifestInvalid, CategoryManifest, false)

	register(CodeUnsatisfiableConstraint, CategoryResolution, false)
	register(CodeMissingPeer, CategoryResolution, false)
	register(CodePeerConflict, CategoryResolution, false)
	register(CodeIncompatibleTarget, CategoryResolution, false)
	register(CodeCycleDetected, CategoryResolution, false)
	register(CodeOverrideAmbiguous, CategoryResolution, false)

	register(CodeNotFound, CategorySource, false)
	register(CodeAuthRequired, CategorySource, false)
	register(CodeAuthInvalid, CategorySource, false)
	register(CodeNetworkTransient, CategorySource, true)
	register(CodeNetworkFatal, CategorySource, false)

	register(CodeDigestMismatch, CategoryIntegrity, false)
	register(CodeTarballMalformed, CategoryIntegrity, false)
	register(CodePathEscape, CategoryIntegrity, false)
	register(CodeSizeExceeded, CategoryIntegrity, false)

	register(CodeLockfileOutdated, CategoryState, false)
	register(CodeProjectBusy, CategoryState, false)
	register(CodePatchApplyFailed, CategoryState, false)
}

// Error is the engine's standard error value: a registered Category+Code,
// a human message, free-form context for logging, the wrapped cause (if
// any), and the caller that raised it.
type Error struct {
	Category Category
	Code     Code
	Message  string
	Context  map[string]any
	Caller   string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s (caller: %s): %v", e.Category, e.Code, e.Message, e.Caller, e.Cause)
	}

	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the registered code is understood to be
// transient (e.g. network hiccups), letting callers decide whether to
// back off and retry instead of surfacing the failure immediately.
func (e *Error) Retryable() bool {
	return registry[e.Code].retry
}

// New builds an Error for a registered code, capturing the immediate
// caller for diagnostics the way the teacher's NewStandardError does.
func New(code Code, message string, context map[string]any) *Error {
	info, ok := registry[code]
	if !ok {
		panic("engineerr: use of unregistered code: " + string(code))
	}

	pc, _, _, ok2 := runtime.Caller(1)

	caller := "unknown"
	if ok2 {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &Error{Category: info.category, Code: code, Message: message, Context: context, Caller: caller}
}

// Wrap builds an Error around an existing cause.
func Wrap(code Code, cause error, message string, context map[string]any) *Error {
	e := New(code, message, context)
	e.Cause = cause

	return e
}

// Common constructors mirroring the vocabulary spec §7 names explicitly,
// so call sites read as intent rather than bare New(Code...) calls.

func ManifestParseError(cause error) *Error {
	return Wrap(CodeManifestParseError, cause, "manifest is not valid JSON", nil)
}

func ManifestInvalid(reason string) *Error {
	return New(CodeManifestInvalid, reason, map[string]any{"reason": reason})
}

func UnsatisfiableConstraint(name, requirement string) *Error {
	return New(CodeUnsatisfiableConstraint,
		fmt.Sprintf("no version of %s satisfies %s", name, requirement),
		map[string]any{"name": name, "requirement": requirement})
}

func MissingPeer(name, peer string) *Error {
	return New(CodeMissingPeer,
		fmt.Sprintf("%s requires peer dependency %s which is not present in the sibling closure", name, peer),
		map[string]any{"name": name, "peer": peer})
}

func PeerConflict(peer, wantRange, got string) *Error {
	return New(CodePeerConflict,
		fmt.Sprintf("peer dependency %s: resolved version %s does not satisfy %s", peer, got, wantRange),
		map[string]any{"peer": peer, "requirement": wantRange, "resolved": got})
}

func IncompatibleTarget(consumer, consumerTarget, library, libraryTarget string) *Error {
	return New(CodeIncompatibleTarget,
		fmt.Sprintf("%s (target %s) cannot depend on %s (target %s)", consumer, consumerTarget, library, libraryTarget),
		map[string]any{"consumer": consumer, "consumerTarget": consumerTarget, "library": library, "libraryTarget": libraryTarget})
}

func CycleDetected(path []string) *Error {
	return New(CodeCycleDetected, fmt.Sprintf("dependency cycle detected: %v", path), map[string]any{"path": path})
}

func OverrideAmbiguous(alias string, candidates []string) *Error {
	return New(CodeOverrideAmbiguous,
		fmt.Sprintf("override for %s is ambiguous between %v", alias, candidates),
		map[string]any{"alias": alias, "candidates": candidates})
}

func NotFound(what string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found", what), map[string]any{"what": what})
}

func AuthRequired(source string) *Error {
	return New(CodeAuthRequired, fmt.Sprintf("authentication required for %s", source), map[string]any{"source": source})
}

func AuthInvalid(source string) *Error {
	return New(CodeAuthInvalid, fmt.Sprintf("authentication rejected by %s", source), map[string]any{"source": source})
}

func NetworkTransient(cause error, op string) *Error {
	return Wrap(CodeNetworkTransient, cause, fmt.Sprintf("transient network failure during %s", op), map[string]any{"op": op})
}

func NetworkFatal(cause error, op string) *Error {
	return Wrap(CodeNetworkFatal, cause, fmt.Sprintf("network failure during %s", op), map[string]any{"op": op})
}

func DigestMismatch(want, got string) *Error {
	return New(CodeDigestMismatch,
		fmt.Sprintf("digest mismatch: expected %s, got %s", want, got),
		map[string]any{"want": want, "got": got})
}

func TarballMalformed(reason string) *Error {
	return New(CodeTarballMalformed, fmt.Sprintf("malformed tarball: %s", reason), map[string]any{"reason": reason})
}

func PathEscape(entry string) *Error {
	return New(CodePathEscape, fmt.Sprintf("archive entry %q escapes the extraction root", entry), map[string]any{"entry": entry})
}

func SizeExceeded(limitKind string, limit, got int64) *Error {
	return New(CodeSizeExceeded,
		fmt.Sprintf("%s limit exceeded: %d > %d", limitKind, got, limit),
		map[string]any{"limitKind": limitKind, "limit": limit, "got": got})
}

func LockfileOutdated(reason string) *Error {
	return New(CodeLockfileOutdated, fmt.Sprintf("lockfile is outdated: %s", reason), map[string]any{"reason": reason})
}

func ProjectBusy(lockPath string) *Error {
	return New(CodeProjectBusy, fmt.Sprintf("another operation holds the project lock at %s", lockPath), map[string]any{"lockPath": lockPath})
}

func PatchApplyFailed(name string, cause error) *Error {
	return Wrap(CodePatchApplyFailed, cause, fmt.Sprintf("patch for %s failed to apply", name), map[string]any{"name": name})
}
