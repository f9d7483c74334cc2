package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"codeforge/internal/logging"
	"codeforge/internal/ollama"
	"codeforge/internal/types"
)

// ModelLister enumerates the models installed on the server.
type ModelLister interface {
	Tags(ctx context.Context) ([]string, error)
}

// Puller downloads a missing model, streaming progress. Implemented by the
// ollama client; optional.
type Puller interface {
	Pull(ctx context.Context, name string, onProgress func(ollama.PullProgress)) error
}

// PullPrompt asks the user whether a missing preferred model should be
// downloaded. Only consulted in interactive mode; declining is non-fatal.
type PullPrompt func(model string) bool

// Router resolves roles to installed models.
type Router struct {
	lister      ModelLister
	puller      Puller
	prompt      PullPrompt
	progress    func(model string, p ollama.PullProgress)
	interactive bool

	mu        sync.Mutex
	specs     map[string]types.ModelSpec
	installed map[string]bool
	loaded    bool
}

// New creates a router over the static registry.
func New(lister ModelLister) *Router {
	specs := make(map[string]types.ModelSpec, len(Registry))
	for _, s := range Registry {
		specs[s.Name] = s
	}
	return &Router{lister: lister, specs: specs}
}

// SetInteractive enables download offers for missing preferred models.
// progress receives the byte-accurate pull deltas; it may be nil.
func (r *Router) SetInteractive(puller Puller, prompt PullPrompt, progress func(model string, p ollama.PullProgress)) {
	r.puller = puller
	r.prompt = prompt
	r.progress = progress
	r.interactive = puller != nil && prompt != nil
}

// refresh loads the installed-model set once per resolution cycle.
// Matching is exact, including the quantization tag: foo:70b never matches
// an installed foo:14b.
func (r *Router) refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	names, err := r.lister.Tags(ctx)
	if err != nil {
		return fmt.Errorf("list installed models: %w", err)
	}
	r.installed = make(map[string]bool, len(names))
	for _, n := range names {
		r.installed[n] = true
	}
	r.loaded = true
	logging.RouterDebug("installed models: %v", names)
	return nil
}

// Invalidate forces the next resolution to re-read the installed-model list.
func (r *Router) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
}

// Resolve maps (role, complexity, size) to an installed ModelSpec.
//
// Resolution order: the preference list for the exact (complexity, size)
// cell; then one complexity tier down at a time; then one size tier down at
// a time; then the highest-priority installed model in the role's category;
// then any installed general model; otherwise ErrModelUnavailable.
func (r *Router) Resolve(ctx context.Context, role types.Role, complexity types.Complexity, size types.Size) (types.ModelSpec, error) {
	if err := r.refresh(ctx); err != nil {
		return types.ModelSpec{}, err
	}

	// Complexity degrades first, at the requested size.
	for _, c := range degradeComplexity(complexity) {
		for _, name := range routes[routeKey{c, size}][role] {
			if spec, ok := r.pick(ctx, name); ok {
				logging.Router("resolved %s %s/%s -> %s", role, complexity, size, name)
				return spec, nil
			}
		}
	}
	// Then size degrades, at the lowest complexity tier.
	for _, s := range degradeSize(size) {
		for _, name := range routes[routeKey{types.ComplexitySimple, s}][role] {
			if spec, ok := r.pick(ctx, name); ok {
				logging.Router("resolved %s %s/%s -> %s (size degraded)", role, complexity, size, name)
				return spec, nil
			}
		}
	}

	// Category fallback: highest-priority installed model in the role's
	// category.
	if spec, ok := r.bestInstalled(roleCategory[role]); ok {
		logging.Router("resolved %s via category fallback -> %s", role, spec.Name)
		return spec, nil
	}

	// Last resort: any installed general model.
	if spec, ok := r.bestInstalled(types.CategoryGeneral); ok {
		logging.Router("resolved %s via general fallback -> %s", role, spec.Name)
		return spec, nil
	}

	logging.Router("no model available for role %s", role)
	return types.ModelSpec{}, fmt.Errorf("%w: role %s", types.ErrModelUnavailable, role)
}

// pick returns the spec when the model is installed, offering a download in
// interactive mode when it is not.
func (r *Router) pick(ctx context.Context, name string) (types.ModelSpec, bool) {
	spec, known := r.specs[name]
	if !known {
		return types.ModelSpec{}, false
	}
	r.mu.Lock()
	have := r.installed[name]
	r.mu.Unlock()
	if have {
		return spec, true
	}

	if r.interactive && r.prompt(name) {
		logging.Router("pulling missing model %s", name)
		var onProgress func(ollama.PullProgress)
		if r.progress != nil {
			onProgress = func(p ollama.PullProgress) { r.progress(name, p) }
		}
		if err := r.puller.Pull(ctx, name, onProgress); err != nil {
			logging.Router("pull of %s failed: %v", name, err)
			return types.ModelSpec{}, false
		}
		r.mu.Lock()
		r.installed[name] = true
		r.mu.Unlock()
		return spec, true
	}
	return types.ModelSpec{}, false
}

// bestInstalled returns the highest-priority installed model of a category.
func (r *Router) bestInstalled(cat types.ModelCategory) (types.ModelSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []types.ModelSpec
	for name, spec := range r.specs {
		if spec.Category == cat && r.installed[name] {
			candidates = append(candidates, spec)
		}
	}
	if len(candidates) == 0 {
		return types.ModelSpec{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Name < candidates[j].Name
	})
	return candidates[0], true
}

// Fastest returns the first installed model from the fixed fast-model
// preference list, for the classifier's single LLM call.
func (r *Router) Fastest(ctx context.Context) (types.ModelSpec, error) {
	if err := r.refresh(ctx); err != nil {
		return types.ModelSpec{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range fastPreference {
		if r.installed[name] {
			return r.specs[name], nil
		}
	}
	return types.ModelSpec{}, fmt.Errorf("%w: no fast model installed", types.ErrModelUnavailable)
}

// EmbeddingModel returns an installed embedding-capable model, if any.
func (r *Router) EmbeddingModel(ctx context.Context) (types.ModelSpec, bool) {
	if err := r.refresh(ctx); err != nil {
		return types.ModelSpec{}, false
	}
	return r.bestInstalled(types.CategoryEmbedding)
}

// degradeComplexity yields the complexity ladder starting at c.
func degradeComplexity(c types.Complexity) []types.Complexity {
	ladder := []types.Complexity{types.ComplexityHeavy, types.ComplexityMedium, types.ComplexitySimple}
	for i, v := range ladder {
		if v == c {
			return ladder[i:]
		}
	}
	return ladder
}

// degradeSize yields the size ladder starting at s.
func degradeSize(s types.Size) []types.Size {
	ladder := []types.Size{types.SizeLarge, types.SizeMedium, types.SizeSmall}
	for i, v := range ladder {
		if v == s {
			return ladder[i:]
		}
	}
	return ladder
}
