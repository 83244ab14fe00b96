package ports

// Listener is a long-running receiver that pushes emails into the engine
type Listener interface {
	// Start starts accepting messages
	Start() error

	// Stop stops accepting messages
	Stop() error
}
