package handler

import "fmt"

// MissingDependencyError is returned by NewHandler when a mandatory collaborator was not supplied.
type MissingDependencyError struct {
	Name string
}

func (m *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing handler dependency: %s", m.Name)
}
