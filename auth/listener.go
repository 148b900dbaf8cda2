package auth

import (
	"github.com/google/uuid"
)

// Listener observes credential lifecycle events. Calls happen on the task
// goroutine that produced the event, after shared state has been updated.
type Listener interface {
	OnAuthCreated(info *AuthInfo)
	OnRefreshed(info *AuthInfo)
	OnAuthFailure(info *AuthInfo, err error)
	OnLoggedOut(info *AuthInfo, err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Created   func(info *AuthInfo)
	Refreshed func(info *AuthInfo)
	Failure   func(info *AuthInfo, err error)
	LoggedOut func(info *AuthInfo, err error)
}

func (f ListenerFuncs) OnAuthCreated(info *AuthInfo) {
	if f.Created != nil {
		f.Created(info)
	}
}

func (f ListenerFuncs) OnRefreshed(info *AuthInfo) {
	if f.Refreshed != nil {
		f.Refreshed(info)
	}
}

func (f ListenerFuncs) OnAuthFailure(info *AuthInfo, err error) {
	if f.Failure != nil {
		f.Failure(info, err)
	}
}

func (f ListenerFuncs) OnLoggedOut(info *AuthInfo, err error) {
	if f.LoggedOut != nil {
		f.LoggedOut(info, err)
	}
}

// Subscribe registers l and returns the handle to unsubscribe it with.
func (m *Manager) Subscribe(l Listener) uuid.UUID {
	id := uuid.New()
	m.lmu.Lock()
	m.listeners[id] = l
	m.lmu.Unlock()
	return id
}

// Unsubscribe removes a listener. It reports whether the handle was known.
func (m *Manager) Unsubscribe(id uuid.UUID) bool {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	if _, ok := m.listeners[id]; !ok {
		return false
	}
	delete(m.listeners, id)
	return true
}

func (m *Manager) snapshotListeners() []Listener {
	m.lmu.RLock()
	defer m.lmu.RUnlock()
	out := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		out = append(out, l)
	}
	return out
}

// Every listener receives its own clone.

func (m *Manager) notifyCreated(info *AuthInfo) {
	for _, l := range m.snapshotListeners() {
		l.OnAuthCreated(info.Clone())
	}
}

func (m *Manager) notifyRefreshed(info *AuthInfo) {
	for _, l := range m.snapshotListeners() {
		l.OnRefreshed(info.Clone())
	}
}

func (m *Manager) notifyFailure(info *AuthInfo, err error) {
	for _, l := range m.snapshotListeners() {
		l.OnAuthFailure(info.Clone(), err)
	}
}

func (m *Manager) notifyLoggedOut(info *AuthInfo, err error) {
	for _, l := range m.snapshotListeners() {
		l.OnLoggedOut(info.Clone(), err)
	}
}
