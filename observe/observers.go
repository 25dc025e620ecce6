package observe

import "context"

// BaseObserver implements Observer with no-op methods.
//
// Embed it to implement only the callbacks you need.
type BaseObserver struct{}

func (BaseObserver) OnStart(context.Context, string)                {}
func (BaseObserver) OnAttempt(context.Context, string, AttemptRecord) {}
func (BaseObserver) OnSuccess(context.Context, string, Timeline)      {}
func (BaseObserver) OnFailure(context.Context, string, Timeline)      {}

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	Observers []Observer
}

// Multi returns a single Observer for obs, dropping nil and no-op entries.
func Multi(obs ...Observer) Observer {
	var kept []Observer
	for _, o := range obs {
		if !IsNoop(o) {
			kept = append(kept, o)
		}
	}
	switch len(kept) {
	case 0:
		return NoopObserver{}
	case 1:
		return kept[0]
	default:
		return MultiObserver{Observers: kept}
	}
}

func (m MultiObserver) OnStart(ctx context.Context, id string) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnStart(ctx, id)
		}
	}
}

func (m MultiObserver) OnAttempt(ctx context.Context, id string, rec AttemptRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnAttempt(ctx, id, rec)
		}
	}
}

func (m MultiObserver) OnSuccess(ctx context.Context, id string, tl Timeline) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnSuccess(ctx, id, tl)
		}
	}
}

func (m MultiObserver) OnFailure(ctx context.Context, id string, tl Timeline) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnFailure(ctx, id, tl)
		}
	}
}
