package constants

// Scope selects which state directory an operation targets.
type Scope string

const (
	// ScopeLocal is the project directory, <root>/.opynions.
	ScopeLocal Scope = "local"

	// ScopeGlobal is the user directory, ~/.opynions.
	ScopeGlobal Scope = "global"
)

// Valid returns true if the scope is a recognized value.
func (s Scope) Valid() bool {
	switch s {
	case ScopeLocal, ScopeGlobal:
		return true
	}
	return false
}

// String returns the string representation of the scope.
func (s Scope) String() string {
	return string(s)
}
