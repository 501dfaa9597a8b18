package provider

import (
	"sync"
	"time"

	"github.com/squidstack/squidflags/pkg/eval"
	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/targeting"
)

// evaluating holds what every provider shares: the evaluator, the installed
// targeting context and the callbacks. Flags the source does not define
// resolve to the caller's default without error.
type evaluating struct {
	evaluator eval.IEvaluator

	mu   sync.RWMutex
	tc   *targeting.Context
	opts Options
}

func (e *evaluating) SetTargetingContext(tc *targeting.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tc = tc
}

func (e *evaluating) setOptions(opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = opts
}

func (e *evaluating) options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts
}

func (e *evaluating) attributes() map[string]any {
	e.mu.RLock()
	tc := e.tc
	e.mu.RUnlock()
	return tc.Attributes()
}

func (e *evaluating) ResolveBooleanValue(flagKey string, defaultValue bool) (bool, error) {
	v, reason, err := e.evaluator.ResolveBooleanValue(flagKey, defaultValue, e.attributes())
	if err != nil && !isNotFound(err) {
		return defaultValue, err
	}
	if err != nil {
		reason = model.DefaultReason
	}
	e.impression(flagKey, v, reason)
	return v, nil
}

func (e *evaluating) ResolveStringValue(flagKey string, defaultValue string) (string, error) {
	v, reason, err := e.evaluator.ResolveStringValue(flagKey, defaultValue, e.attributes())
	if err != nil && !isNotFound(err) {
		return defaultValue, err
	}
	if err != nil {
		reason = model.DefaultReason
	}
	e.impression(flagKey, v, reason)
	return v, nil
}

func (e *evaluating) impression(flagKey string, value any, reason string) {
	if h := e.options().ImpressionHandler; h != nil {
		h(Impression{
			Flag:     flagKey,
			Value:    value,
			Reason:   reason,
			Targeted: reason == model.TargetingMatchReason,
			Time:     time.Now(),
		})
	}
}

func (e *evaluating) fetched(source string, changed int) {
	if h := e.options().ConfigurationFetchedHandler; h != nil {
		h(FetchStatus{Source: source, Changed: changed, Time: time.Now()})
	}
}

func (e *evaluating) reportError(err error) {
	if h := e.options().ErrorHandler; h != nil {
		h(err)
	}
}

func isNotFound(err error) bool {
	return err != nil && err.Error() == model.FlagNotFoundErrorCode
}
