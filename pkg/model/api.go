package model

// ListOptions configures history queries with pagination and filtering.
type ListOptions struct {
	Limit  int
	Offset int
	Op     string       // Optional operation filter, e.g. "removeBackground"
	Status RecordStatus // Optional outcome filter
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
