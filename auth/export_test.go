package auth

// ForgetUser removes userID the way a finished logout does, without revoking.
func (m *Manager) ForgetUser(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.loadLocked()
	m.removeLocked(userID)
	return m.persistLocked()
}
