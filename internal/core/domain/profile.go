package domain

import "fmt"

// EmbeddingProfile names a (provider, model, dimensionality) triple.
// All rows written under a profile share its dimensionality.
type EmbeddingProfile struct {
	// ID is the integer key used to scope stored rows.
	ID int

	// Provider identifies the embedding backend ("openai", "ollama").
	Provider string

	// Model is the provider's model identifier.
	Model string

	// Dimensions is the fixed embedding vector size.
	Dimensions int

	// Name is the human-readable profile label.
	Name string
}

// ProfileRegistry maps integer profile ids to embedding profiles.
// Construct one with NewProfileRegistry; it is immutable afterwards.
type ProfileRegistry struct {
	profiles map[int]EmbeddingProfile
}

// DefaultProfiles are the built-in embedding profiles.
var DefaultProfiles = []EmbeddingProfile{
	{ID: 1, Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536, Name: "openai-small"},
	{ID: 2, Provider: "openai", Model: "text-embedding-3-large", Dimensions: 3072, Name: "openai-large"},
	{ID: 3, Provider: "ollama", Model: "nomic-embed-text", Dimensions: 768, Name: "ollama-nomic"},
	{ID: 4, Provider: "ollama", Model: "all-minilm", Dimensions: 384, Name: "ollama-minilm"},
}

// NewProfileRegistry builds a registry from the given profiles.
// Duplicate ids and non-positive dimensions fail construction.
func NewProfileRegistry(profiles []EmbeddingProfile) (*ProfileRegistry, error) {
	r := &ProfileRegistry{profiles: make(map[int]EmbeddingProfile, len(profiles))}
	for _, p := range profiles {
		if p.Dimensions <= 0 {
			return nil, E(CodeConfiguration, "profiles.register", nil,
				"profileID", p.ID, "reason", "dimensions must be positive")
		}
		if _, ok := r.profiles[p.ID]; ok {
			return nil, E(CodeConfiguration, "profiles.register",
				fmt.Errorf("duplicate profile id %d", p.ID))
		}
		r.profiles[p.ID] = p
	}
	return r, nil
}

// Get returns the profile for id, or a configuration error wrapping
// ErrUnknownProfile when no such profile is registered.
func (r *ProfileRegistry) Get(id int) (EmbeddingProfile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return EmbeddingProfile{}, E(CodeConfiguration, "profiles.get",
			ErrUnknownProfile, "profileID", id)
	}
	return p, nil
}

// List returns all registered profiles in unspecified order.
func (r *ProfileRegistry) List() []EmbeddingProfile {
	out := make([]EmbeddingProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}
