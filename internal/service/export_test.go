package service

import "io"

// WriteCSV exposes writeCSV to the external test package
func (s *Service) WriteCSV(name string, write func(io.Writer) error) (string, error) {
	return s.writeCSV(name, write)
}
