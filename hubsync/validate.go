package hubsync

import (
	"github.com/mmdatafocus/hubsync_backend/models"
)

// CheckResult enforces the uniform success contract of a platform call.
// A nil result means the transport returned nothing at all.
func CheckResult(op string, entityKey string, res *models.Result) error {
	if res == nil {
		return &SyncError{Kind: KindProtocolViolation, Op: op, EntityKey: entityKey, Message: "no result returned"}
	}
	if res.IsSuccessful {
		return nil
	}
	msg := res.Message
	if msg == "" {
		msg = "call was not successful"
	}
	rules := make([]models.BrokenRule, len(res.BrokenRules))
	copy(rules, res.BrokenRules)
	return &SyncError{Kind: KindRemoteRejection, Op: op, EntityKey: entityKey, Message: msg, BrokenRules: rules}
}

// call runs one transport operation and validates its result.
func call(op string, entityKey string, fn func() (*models.Result, error)) (*models.Result, error) {
	res, err := fn()
	if err != nil {
		return nil, transportError(op, entityKey, err)
	}
	if err := CheckResult(op, entityKey, res); err != nil {
		return nil, err
	}
	return res, nil
}

func missingEntity(op string, entityKey string, what string) error {
	return &SyncError{Kind: KindProtocolViolation, Op: op, EntityKey: entityKey, Message: what + " missing from successful result"}
}

// fetch is call for the typed lookup results, which all embed Result.
func fetch[T any, PT interface {
	*T
	Outcome() *models.Result
}](op string, entityKey string, fn func() (PT, error)) (PT, error) {
	res, err := fn()
	if err != nil {
		return nil, transportError(op, entityKey, err)
	}
	if res == nil {
		return nil, CheckResult(op, entityKey, nil)
	}
	if err := CheckResult(op, entityKey, res.Outcome()); err != nil {
		return nil, err
	}
	return res, nil
}
