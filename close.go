package coocgo

// Close releases the session's store. Closing an already closed or nil
// session is a no-op; any other operation on a closed session returns
// ErrClosed.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.store.Close()
}
