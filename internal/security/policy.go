package security

import "time"

const (
	DefaultFailureThreshold = 10
	DefaultFailureWindow    = 10 * time.Minute
	DefaultLockDuration     = 15 * time.Minute
	DefaultAbsoluteTimeout  = 30 * time.Minute
	DefaultIdleTimeout      = 15 * time.Minute
)

// LockZone is the fixed offset lock deadlines are computed and compared in.
var LockZone = time.FixedZone("UTC+8", 8*60*60)

// Policy holds the lockout and session timing rules. Both factors share one
// policy and one failure ledger.
type Policy struct {
	FailureThreshold int
	FailureWindow    time.Duration
	LockDuration     time.Duration
	AbsoluteTimeout  time.Duration
	IdleTimeout      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold: DefaultFailureThreshold,
		FailureWindow:    DefaultFailureWindow,
		LockDuration:     DefaultLockDuration,
		AbsoluteTimeout:  DefaultAbsoluteTimeout,
		IdleTimeout:      DefaultIdleTimeout,
	}
}

// withDefaults fills zero fields so a partially populated Policy stays usable.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = d.FailureThreshold
	}
	if p.FailureWindow <= 0 {
		p.FailureWindow = d.FailureWindow
	}
	if p.LockDuration <= 0 {
		p.LockDuration = d.LockDuration
	}
	if p.AbsoluteTimeout <= 0 {
		p.AbsoluteTimeout = d.AbsoluteTimeout
	}
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = d.IdleTimeout
	}
	return p
}
