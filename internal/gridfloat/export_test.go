package gridfloat

// CloseHandle closes the tile's open data file while leaving it in place,
// as a Close racing with a read would.
func CloseHandle(t *Tile) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	return t.f.Close()
}
