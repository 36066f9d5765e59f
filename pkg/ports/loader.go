package ports

// InstanceSpec carries everything a loader needs to construct one component
// instance: the declarative name, the already-validated parameter map, and the
// reserved persisted-state directory. The directory exists before the first
// Decide call and is never shared between instances.
type InstanceSpec struct {
	// Name is the unique instance name from the declarative tree.
	Name string

	// Component is the registry entry to resolve (static loading). Empty
	// means the instance name doubles as the component name.
	Component string

	// Path locates the library to resolve (shared loading).
	Path string

	Params  map[string]any
	WorkDir string
}

// Loader resolves a component implementation by name. Static (build-time
// registry) and shared (dynamically resolved library) loaders satisfy the same
// contract, so the rest of the system cannot tell them apart.
type Loader interface {
	// Load constructs a live component. A resolution or version failure is a
	// LoadFailure isolated to this instance; the loader must never return a
	// partially constructed component.
	Load(spec InstanceSpec) (Component, error)
}
