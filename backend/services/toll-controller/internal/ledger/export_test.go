package ledger

// SetWriteFile swaps the file writer so tests can simulate disk failures.
func SetWriteFile(s *Store, fn func(path string, data []byte) error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.writeFile = fn
}

// RestoreWriteFile puts the atomic writer back.
func RestoreWriteFile(s *Store) {
	SetWriteFile(s, writeFileAtomic)
}
