package ports

// Frontend is a long-running entry point that drives the core services
type Frontend interface {
	// Start starts serving in the background
	Start() error

	// Stop stops serving and releases listeners
	Stop() error
}
