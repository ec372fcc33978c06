package raffle

import (
	"errors"
)

// Kind groups errors by who can act on them.
type Kind uint8

const (
	Validation Kind = iota + 1
	Authorization
	State
	Arithmetic
	External
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authorization:
		return "authorization"
	case State:
		return "state"
	case Arithmetic:
		return "arithmetic"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

// Error is the single discriminated failure an operation reports.
type Error struct {
	Code string
	Kind Kind
}

func (e *Error) Error() string {
	return "raffle: " + e.Code
}

func newError(code string, kind Kind) *Error {
	return &Error{Code: code, Kind: kind}
}

var (
	ErrInvalidAmount          = newError("InvalidAmount", Validation)
	ErrInvalidDeadline        = newError("InvalidDeadline", Validation)
	ErrMustDepositWholeTokens = newError("MustDepositWholeTokens", Validation)
	ErrInvalidSlot            = newError("InvalidSlot", Validation)
	ErrBatchTooLarge          = newError("BatchTooLarge", Validation)
	ErrInvalidProof           = newError("InvalidProof", Validation)
	ErrInvalidEscrow          = newError("InvalidEscrow", Validation)
	ErrInvalidOptions         = newError("InvalidOptions", Validation)
	ErrInvalidWinner          = newError("InvalidWinner", Validation)
	ErrPrizeMustBeNft         = newError("PrizeMustBeNft", Validation)
	ErrWrongRaffle            = newError("WrongRaffle", Validation)
	ErrRaffleNotFound         = newError("RaffleNotFound", Validation)
	ErrTicketNotFound         = newError("TicketNotFound", Validation)

	ErrUnauthorized  = newError("Unauthorized", Authorization)
	ErrPermitExpired = newError("PermitExpired", Authorization)
	ErrPermitInvalid = newError("PermitInvalid", Authorization)
	ErrNonceReplayed = newError("NonceReplayed", Authorization)

	ErrRaffleExists         = newError("RaffleExists", State)
	ErrWrongLedgerMode      = newError("WrongLedgerMode", State)
	ErrRaffleNotSelling     = newError("RaffleNotSelling", State)
	ErrPastDeadline         = newError("PastDeadline", State)
	ErrConcurrentDeposit    = newError("ConcurrentDeposit", State)
	ErrOverSubscription     = newError("OverSubscription", State)
	ErrSlotTaken            = newError("SlotTaken", State)
	ErrWrongStatus          = newError("WrongStatus", State)
	ErrNotRefundableYet     = newError("NotRefundableYet", State)
	ErrAlreadyRefunded      = newError("AlreadyRefunded", State)
	ErrAlreadyClaimedWin    = newError("AlreadyClaimedWin", State)
	ErrNotWinningTicket     = newError("NotWinningTicket", State)
	ErrPrizeAlreadySet      = newError("PrizeAlreadySet", State)
	ErrPrizeNotSet          = newError("PrizeNotSet", State)
	ErrPrizeAlreadyClaimed  = newError("PrizeAlreadyClaimed", State)
	ErrMustClaimWinFirst    = newError("MustClaimWinFirst", State)
	ErrAlreadyCollected     = newError("AlreadyCollected", State)
	ErrAutoDrawDisabled     = newError("AutoDrawDisabled", State)
	ErrTicketModeDisabled   = newError("TicketModeDisabled", State)
	ErrUnknownDrawRequest   = newError("UnknownDrawRequest", State)
	ErrDrawRecoveryDisabled = newError("DrawRecoveryDisabled", State)
	ErrDrawNotStuck         = newError("DrawNotStuck", State)

	ErrOverflow = newError("Overflow", Arithmetic)

	ErrDrawAborted      = newError("AbortedComputation", External)
	ErrTransferRejected = newError("TransferRejected", External)
	ErrBurnRejected     = newError("BurnRejected", External)
)

// KindOf returns the kind of the engine error wrapped in err, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the code of the engine error wrapped in err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
