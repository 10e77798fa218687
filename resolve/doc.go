// Package resolve loads referenced modules and resolves type and member
// references across module boundaries.
//
// A Resolver owns its search locations; nothing is process-wide, so several
// weaving runs in one process do not interfere:
//
//	r := resolve.New(resolve.Config{SearchPaths: []string{"lib"}})
//	r.AddSearchPath(filepath.Dir(annotationModulePath))
//	t, err := r.ResolveType(from, tok)
//
// Modules are looked up as <dir>/<name>.ilm in search order and cached by name.
package resolve
