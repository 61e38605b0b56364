package tiergo

// Close stops the background worker and waits for the current cycle to
// finish. Operations called after Close return ErrClosed. Close is
// idempotent and safe to call on a nil receiver.
func (t *Tiering) Close() error {
	if t == nil {
		return nil
	}

	return translateError(t.manager.Close())
}
