// Package er implements the typed-error discipline used throughout
// this SDK, adapted from pkt-cash/pktd's btcutil/er package. Errors
// carry a stable (type, code) identity instead of being matched by
// string or by sentinel value, and optionally capture a stack trace at
// the point they were first created.
package er

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/pkt-cash/indexer-sdk/internal/version"
)

// GenericErrorType is for packages with only one or two error codes
// which don't make sense having their own error type.
var GenericErrorType = NewErrorType("er.GenericErrorType")

var ErrUnexpectedEOF = GenericErrorType.CodeWithDefault("ErrUnexpectedEOF", io.ErrUnexpectedEOF)
var EOF = GenericErrorType.CodeWithDefault("EOF", io.EOF)

// ErrorCode identifies a particular type of fault within an ErrorType.
type ErrorCode struct {
	Detail         string
	Number         int
	Type           *ErrorType
	defaultWrapped error
}

type typedErr struct {
	messages []string
	errType  *ErrorType
	code     *ErrorCode
	err      R
}

// ErrorType is a generic type of error; each type can have many codes.
type ErrorType struct {
	Name       string
	codeLookup map[int]*ErrorCode
	Codes      []*ErrorCode
}

// NewErrorType creates a new error type identified by name, e.g.
// var MyError = er.NewErrorType("mypackage.MyError").
func NewErrorType(ident string) ErrorType {
	return ErrorType{
		Name:       ident,
		codeLookup: make(map[int]*ErrorCode),
	}
}

func (c *ErrorCode) Is(err R) bool {
	if err == nil {
		return c == nil
	}
	if te, ok := err.(typedErr); ok {
		return te.code == c
	}
	return false
}

func (c *ErrorCode) new(info string, err R, bstack []byte) R {
	var messages []string
	if info == "" {
		messages = []string{c.Detail}
	} else {
		messages = []string{c.Detail, info}
	}
	if err == nil {
		if bstack == nil {
			bstack = captureStack()
		}
		err = new("", bstack)
	} else if te, ok := err.(typedErr); ok {
		if te.code == c {
			if info != "" {
				te.messages = append([]string{info}, te.messages...)
			}
			return te
		}
	}
	return typedErr{
		messages: messages,
		errType:  c.Type,
		code:     c,
		err:      err,
	}
}

// New constructs an error of this code, optionally wrapping err.
func (c *ErrorCode) New(info string, err R) R {
	return c.new(info, err, nil)
}

// Default constructs an error of this code with no wrapped cause.
func (c *ErrorCode) Default() R {
	if c.defaultWrapped != nil {
		return c.new("", E(c.defaultWrapped), nil)
	}
	return c.new("", nil, nil)
}

func (e *ErrorType) Is(err R) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(typedErr); ok {
		return te.errType == e
	}
	return false
}

func (e *ErrorType) Decode(err R) *ErrorCode {
	if te, ok := err.(typedErr); ok && te.errType == e {
		return te.code
	}
	return nil
}

func (e *ErrorType) newErrorCode(detail string, number int, defaultWrapped error) *ErrorCode {
	code := &ErrorCode{
		Detail:         detail,
		Number:         number,
		Type:           e,
		defaultWrapped: defaultWrapped,
	}
	e.Codes = append(e.Codes, code)
	if number != 0 {
		e.codeLookup[number] = code
	}
	return code
}

func (e *ErrorType) Code(info string) *ErrorCode {
	return e.newErrorCode(info, 0, nil)
}

func (e *ErrorType) CodeWithDefault(info string, defaultError error) *ErrorCode {
	return e.newErrorCode(info, 0, defaultError)
}

func (e *ErrorType) CodeWithDetail(info string, detail string) *ErrorCode {
	c := e.newErrorCode(info, 0, nil)
	c.Detail = detail
	return c
}

func (e *ErrorType) CodeWithNumber(info string, number int) *ErrorCode {
	return e.newErrorCode(info, number, nil)
}

func (e *ErrorType) CodeWithNumberAndDetail(info string, number int, detail string) *ErrorCode {
	c := e.newErrorCode(info, number, nil)
	c.Detail = detail
	return c
}

func (e *ErrorType) NumberToCode(number int) *ErrorCode {
	return e.codeLookup[number]
}

func (te typedErr) AddMessage(m string) {
	te.messages = append([]string{m}, te.messages...)
}

func (te typedErr) Message() string {
	msgs := te.messages
	if te.err != nil {
		msgs = append(append([]string{}, msgs...), te.err.Message())
	}
	return strings.Join(msgs, ", ")
}

func (te typedErr) HasStack() bool {
	return te.err != nil && te.err.HasStack()
}

func (te typedErr) Stack() []string {
	if te.err != nil {
		return te.err.Stack()
	}
	return nil
}

func (te typedErr) String() string {
	s := ""
	if te.HasStack() {
		s = "\n\n" + strings.Join(te.Stack(), "\n") + "\n"
	}
	return version.Version + " " + te.Message() + s
}

func (te typedErr) Error() string {
	return te.String()
}

func (te typedErr) Wrapped0() error {
	if te.err != nil {
		return Wrapped(te.err)
	}
	return nil
}

type typedErrAsNative struct {
	e typedErr
}

func (ten typedErrAsNative) Error() string {
	return ten.e.String()
}

func (te typedErr) Native() error {
	return typedErrAsNative{e: te}
}

// R is the error type used throughout the SDK in place of the builtin
// error. It always carries a human message and can carry a stack trace
// and a wrapped cause.
type R interface {
	Message() string
	Stack() []string
	HasStack() bool
	String() string
	Wrapped0() error
	Native() error
	AddMessage(m string)
}

type err struct {
	messages []string
	e        error
	bstack   []byte
	stack    []string
}

type errAsNative struct {
	e err
}

func (e errAsNative) Error() string {
	return e.e.String()
}

func (e err) HasStack() bool {
	return e.bstack != nil
}

var argumentsRegex = regexp.MustCompile(`\([0-9a-fx, \.]*\)$`)
var prefixRegex = regexp.MustCompile(`^.*/pkt-cash/indexer-sdk/`)
var goFileRegex = regexp.MustCompile(`\.go:[0-9]+ `)

func (e err) Stack() []string {
	if e.stack == nil {
		s := strings.Split(string(e.bstack), "\n")
		if len(s) > 5 {
			s = s[5:]
		}
		var stack []string
		fun := ""
		for i := range s {
			x := argumentsRegex.ReplaceAllString(s[i], "()")
			x = prefixRegex.ReplaceAllString(x, "")
			x = "  " + strings.TrimSpace(x)
			if !goFileRegex.MatchString(x) {
				fun = x
			} else {
				stack = append(stack, x+"\t"+fun)
			}
		}
		e.stack = stack
	}
	return e.stack
}

func (e err) AddMessage(m string) {
	if e.messages == nil {
		e.messages = []string{m, e.e.Error()}
	} else {
		e.messages = append([]string{m}, e.messages...)
	}
}

func (e err) Message() string {
	if e.messages == nil {
		return e.e.Error()
	}
	return strings.Join(e.messages, ", ")
}

func (e err) String() string {
	s := ""
	if e.bstack != nil {
		s = "\n\n" + strings.Join(e.Stack(), "\n") + "\n"
	}
	return version.Version + " " + e.Message() + s
}

func (e err) Error() string {
	return e.String()
}

func (e err) Wrapped0() error {
	return e.e
}

func (e err) Native() error {
	return errAsNative{e: e}
}

func captureStack() []byte {
	return debug.Stack()
}

// Wrapped unwraps an R back to the plain error it wraps, if any.
func Wrapped(err R) error {
	if err == nil {
		return nil
	}
	return err.Wrapped0()
}

// Native converts an R into a plain error whose Error() matches String().
func Native(err R) error {
	if err == nil {
		return nil
	}
	return err.Native()
}

func new(s string, bstack []byte) R {
	return err{
		e:      errors.New(s),
		bstack: bstack,
	}
}

// New creates an untyped error with a captured stack trace.
func New(s string) R {
	return new(s, captureStack())
}

// Errorf creates an untyped, formatted error with a captured stack trace.
func Errorf(format string, a ...interface{}) R {
	return err{
		e:      fmt.Errorf(format, a...),
		bstack: captureStack(),
	}
}

func ee(e error) R {
	return err{
		e:      e,
		bstack: captureStack(),
	}
}

// E wraps a plain error as an R, preserving EOF/ErrUnexpectedEOF identity.
func E(e error) R {
	if e == nil {
		return nil
	}
	if en, ok := e.(errAsNative); ok {
		return en.e
	}
	if en, ok := e.(typedErrAsNative); ok {
		return en.e
	}
	switch e {
	case io.ErrUnexpectedEOF:
		return ErrUnexpectedEOF.Default()
	case io.EOF:
		return EOF.Default()
	default:
		return ee(e)
	}
}

func equals(e, r R, fuzzy bool) bool {
	if e == nil || r == nil {
		return e == nil && r == nil
	}
	if te, ok := e.(typedErr); ok {
		if tr, ok := r.(typedErr); ok {
			return te.code == tr.code
		}
		return false
	}
	if ee, ok := e.(err); ok {
		if rr, ok := r.(err); ok {
			if ee.e != nil && rr.e != nil {
				if ee.e == rr.e {
					return true
				}
				if fuzzy {
					return reflect.TypeOf(ee.e) == reflect.TypeOf(rr.e)
				}
			}
			return false
		}
		return false
	}
	panic("er: unrecognized error representation: " + reflect.TypeOf(e).Name())
}

// Equals reports whether e and r are the same error code/value.
func Equals(e, r R) bool {
	return equals(e, r, false)
}

// FuzzyEquals is like Equals but also matches untyped errors wrapping
// the same underlying Go error type.
func FuzzyEquals(e, r R) bool {
	return equals(e, r, true)
}

var errLoopBreak = errors.New("loop break (if you're seeing this error, it should have been caught)")

// LoopBreak is a sentinel (non-)error used to break out of a ForEach/Scan.
var LoopBreak = E(errLoopBreak)

// IsLoopBreak reports whether e is the LoopBreak sentinel.
func IsLoopBreak(e R) bool {
	en, ok := e.(err)
	return ok && en.e == errLoopBreak
}

// Cis reports whether e was constructed from code.
func Cis(code *ErrorCode, e R) bool {
	if code == nil {
		return e == nil
	}
	return code.Is(e)
}
