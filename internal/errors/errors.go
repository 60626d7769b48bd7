// Package errors provides the error types returned by a receipt export run.
//
// Every failure of a run maps to one of these types. None of them is
// recovered locally: they travel up to the pipeline, get logged with their
// context and turn into a non-zero exit status.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Login form roles reported by LoginElementNotFoundError.
const (
	RoleUsername = "username"
	RolePassword = "password"
	RoleSubmit   = "submit"
)

// MissingConfigurationError lists required settings that are absent.
//
// It is returned before the browser is started, so no network activity
// happens when configuration is incomplete.
type MissingConfigurationError struct {
	Names []string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("missing configuration: %s", strings.Join(e.Names, ", "))
}

// NewMissingConfigurationError creates a missing configuration error for the given names
func NewMissingConfigurationError(names ...string) *MissingConfigurationError {
	return &MissingConfigurationError{Names: names}
}

// LoginElementNotFoundError indicates that none of the candidate selectors for
// a login form element appeared.
//
// Role is one of RoleUsername, RolePassword or RoleSubmit. Screenshot holds
// the diagnostic capture path when one was written.
type LoginElementNotFoundError struct {
	Role       string
	Tried      []string
	Screenshot string
	Err        error
}

func (e *LoginElementNotFoundError) Error() string {
	msg := fmt.Sprintf("login element not found: %s (tried %s)", e.Role, strings.Join(e.Tried, " | "))
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error for error chain inspection
func (e *LoginElementNotFoundError) Unwrap() error {
	return e.Err
}

// NewLoginElementNotFoundError creates a login element error for role
func NewLoginElementNotFoundError(role string, tried []string, err error) *LoginElementNotFoundError {
	return &LoginElementNotFoundError{Role: role, Tried: tried, Err: err}
}

// SearchInputNotFoundError indicates that the receipt list has no usable
// search box.
type SearchInputNotFoundError struct {
	Tried []string
	Err   error
}

func (e *SearchInputNotFoundError) Error() string {
	return fmt.Sprintf("search input not found (tried %s)", strings.Join(e.Tried, " | "))
}

// Unwrap returns the wrapped error for error chain inspection
func (e *SearchInputNotFoundError) Unwrap() error {
	return e.Err
}

// NewSearchInputNotFoundError creates a search input error
func NewSearchInputNotFoundError(tried []string, err error) *SearchInputNotFoundError {
	return &SearchInputNotFoundError{Tried: tried, Err: err}
}

// SearchTimeoutError indicates the receipt number never showed up in the
// search results.
type SearchTimeoutError struct {
	ReceiptNo string
	Err       error
}

func (e *SearchTimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search timeout: receipt %q not found in results: %v", e.ReceiptNo, e.Err)
	}
	return fmt.Sprintf("search timeout: receipt %q not found in results", e.ReceiptNo)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *SearchTimeoutError) Unwrap() error {
	return e.Err
}

// NewSearchTimeoutError creates a search timeout error
func NewSearchTimeoutError(receiptNo string, err error) *SearchTimeoutError {
	return &SearchTimeoutError{ReceiptNo: receiptNo, Err: err}
}

// DetailLinkNotFoundError indicates no hyperlink on the results page refers
// to the receipt.
type DetailLinkNotFoundError struct {
	ReceiptNo string
}

func (e *DetailLinkNotFoundError) Error() string {
	return fmt.Sprintf("detail link not found for receipt %q", e.ReceiptNo)
}

// NewDetailLinkNotFoundError creates a detail link error
func NewDetailLinkNotFoundError(receiptNo string) *DetailLinkNotFoundError {
	return &DetailLinkNotFoundError{ReceiptNo: receiptNo}
}

// NoTableFoundError indicates that no table selector matched on the detail page.
type NoTableFoundError struct {
	Tried []string
	Err   error
}

func (e *NoTableFoundError) Error() string {
	return fmt.Sprintf("no table found (tried %s)", strings.Join(e.Tried, " | "))
}

// Unwrap returns the wrapped error for error chain inspection
func (e *NoTableFoundError) Unwrap() error {
	return e.Err
}

// NewNoTableFoundError creates a no table error
func NewNoTableFoundError(tried []string, err error) *NoTableFoundError {
	return &NoTableFoundError{Tried: tried, Err: err}
}

// EmptyResultError indicates the matched table has no row with more than one cell.
type EmptyResultError struct {
	Selector string
	Rows     int
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("empty result: table %q has no multi-cell rows (%d rows read)", e.Selector, e.Rows)
}

// NewEmptyResultError creates an empty result error
func NewEmptyResultError(selector string, rows int) *EmptyResultError {
	return &EmptyResultError{Selector: selector, Rows: rows}
}

// MalformedRowError indicates a row accepted as data lacks the SKU and
// quantity cells.
type MalformedRowError struct {
	Index int
	Cells []string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row %d: want at least 2 cells, got %d %q", e.Index, len(e.Cells), e.Cells)
}

// NewMalformedRowError creates a malformed row error
func NewMalformedRowError(index int, cells []string) *MalformedRowError {
	return &MalformedRowError{Index: index, Cells: cells}
}

// NavigationError wraps a failed page load.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *NavigationError) Unwrap() error {
	return e.Err
}

// NewNavigationError creates a navigation error
func NewNavigationError(url string, err error) *NavigationError {
	return &NavigationError{URL: url, Err: err}
}

// WriteError wraps an I/O failure while persisting a report.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *WriteError) Unwrap() error {
	return e.Err
}

// NewWriteError creates a write error
func NewWriteError(path string, err error) *WriteError {
	return &WriteError{Path: path, Err: err}
}

// DeliveryError wraps a mail transport or authentication failure.
//
// The persisted report stays on disk when delivery fails.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Recipient, e.Err)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError creates a delivery error
func NewDeliveryError(recipient string, err error) *DeliveryError {
	return &DeliveryError{Recipient: recipient, Err: err}
}

// IsMissingConfiguration checks if the error chain holds a MissingConfigurationError
func IsMissingConfiguration(err error) bool {
	var target *MissingConfigurationError
	return stderrors.As(err, &target)
}

// IsLoginElementNotFound checks if the error chain holds a LoginElementNotFoundError
func IsLoginElementNotFound(err error) bool {
	var target *LoginElementNotFoundError
	return stderrors.As(err, &target)
}

// IsSearchTimeout checks if the error chain holds a SearchTimeoutError
func IsSearchTimeout(err error) bool {
	var target *SearchTimeoutError
	return stderrors.As(err, &target)
}

// IsDetailLinkNotFound checks if the error chain holds a DetailLinkNotFoundError
func IsDetailLinkNotFound(err error) bool {
	var target *DetailLinkNotFoundError
	return stderrors.As(err, &target)
}

// IsNoTableFound checks if the error chain holds a NoTableFoundError
func IsNoTableFound(err error) bool {
	var target *NoTableFoundError
	return stderrors.As(err, &target)
}

// IsEmptyResult checks if the error chain holds an EmptyResultError
func IsEmptyResult(err error) bool {
	var target *EmptyResultError
	return stderrors.As(err, &target)
}

// IsMalformedRow checks if the error chain holds a MalformedRowError
func IsMalformedRow(err error) bool {
	var target *MalformedRowError
	return stderrors.As(err, &target)
}

// IsWriteError checks if the error chain holds a WriteError
func IsWriteError(err error) bool {
	var target *WriteError
	return stderrors.As(err, &target)
}

// IsDelivery checks if the error chain holds a DeliveryError
func IsDelivery(err error) bool {
	var target *DeliveryError
	return stderrors.As(err, &target)
}
