package logging

// Component constants for structured logging
const (
	ComponentStartup      = "startup"
	ComponentDatabase     = "database"
	ComponentStorage      = "storage"
	ComponentPool         = "pool"
	ComponentOrchestrator = "orchestrator"
	ComponentBayer        = "bayer-worker"
	ComponentBlueNoise    = "bluenoise-worker"
	ComponentEvents       = "events"
	ComponentCLI          = "cli"
)
