package consultation

import "errors"

var (
	ErrChannelNotOpen      = errors.New("signaling channel is not open")
	ErrNoIncomingCall      = errors.New("no incoming call to answer")
	ErrIncomingCallPending = errors.New("an incoming call is waiting to be answered")
	ErrTornDown            = errors.New("peer session has been torn down")
	ErrNoSession           = errors.New("no session resolved")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// insufficientBalance is implemented by backend errors that carry the
// wallet-floor rejection.
type insufficientBalance interface {
	InsufficientBalance() bool
}

func isInsufficientBalance(err error) bool {
	if errors.Is(err, ErrInsufficientBalance) {
		return true
	}
	var ib insufficientBalance
	return errors.As(err, &ib) && ib.InsufficientBalance()
}
