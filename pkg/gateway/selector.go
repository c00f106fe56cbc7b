package gateway

import "campuspay/pkg/store"

// Selector picks the backend serving a mode.
type Selector interface {
	Backend(mode Mode) store.Backend
}

// StaticSelector serves ModeRemote from Remote and ModeLocal from Local.
// A nil Remote makes every call local.
type StaticSelector struct {
	Remote store.Backend
	Local  store.Backend
}

// Backend implements Selector.
func (s StaticSelector) Backend(mode Mode) store.Backend {
	if mode == ModeRemote && s.Remote != nil {
		return s.Remote
	}
	return s.Local
}
