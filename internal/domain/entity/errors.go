package entity

import (
	"errors"
	"fmt"
)

var (
	ErrSourceExhausted = errors.New("frame source exhausted")
	ErrNoFlightLink    = errors.New("flight link is not connected")
	ErrGoCVDisabled    = errors.New("gocv build tag is not enabled")
)

// LinkErrorKind классифицирует ошибки канала управления.
type LinkErrorKind string

const (
	LinkTimeout    LinkErrorKind = "timeout"
	LinkConnection LinkErrorKind = "connection"
	LinkCommand    LinkErrorKind = "command"
)

// FlightLinkError — ошибка обмена с аппаратом.
type FlightLinkError struct {
	Kind LinkErrorKind
	Op   string
	Err  error
}

func (e *FlightLinkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("flight link %s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("flight link %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *FlightLinkError) Unwrap() error {
	return e.Err
}

// NewLinkError создаёт ошибку канала заданного вида.
func NewLinkError(kind LinkErrorKind, op string, err error) *FlightLinkError {
	return &FlightLinkError{Kind: kind, Op: op, Err: err}
}

// IsTimeout сообщает, что ошибка — истёкшее ожидание телеметрии.
func IsTimeout(err error) bool {
	var le *FlightLinkError
	return errors.As(err, &le) && le.Kind == LinkTimeout
}

// IsConnection сообщает, что не удалось подключиться к аппарату.
func IsConnection(err error) bool {
	var le *FlightLinkError
	return errors.As(err, &le) && le.Kind == LinkConnection
}
