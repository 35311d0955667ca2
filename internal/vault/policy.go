package vault

import "time"

// Policy travels inside the encrypted vault so every client unlocking it
// applies the same limits.
type Policy struct {
	LockTimeout int64 `json:"lock_timeout_ms"`
}

func DefaultPolicy() Policy {
	return Policy{
		LockTimeout: 5 * 60 * 1000,
	}
}

// LockAfter is how long an unlocked key may be reused.
func (p Policy) LockAfter() time.Duration {
	if p.LockTimeout <= 0 {
		return DefaultPolicy().LockAfter()
	}
	return time.Duration(p.LockTimeout) * time.Millisecond
}
