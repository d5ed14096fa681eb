// Package guardmod rewrites annotated Java method declarations so that each
// body runs while holding a guard, typically the GraalPy global interpreter
// lock. It works on text, not syntax trees: declarations are found with
// regular expressions anchored on annotations and their extent is found by
// balancing braces.
//
// # Pipeline
//
// For each file:
//
//  1. Locate: find every declaration carrying a primary annotation. A match
//     whose header declares a class is a container; its members are found
//     with the secondary annotations instead.
//  2. Synthesize: wrap each body in acquire/try/finally/release and append
//     the cached guard parameter (fallback variants fetch an uncached guard
//     instead).
//  3. Assemble: splice the replacements between the untouched gaps and add
//     the imports the guard needs after the package clause.
//
// Files whose declarations already take the guard are skipped, so running
// twice is harmless. Every run can be recorded in a SQLite ledger holding
// the original contents, which Restore uses to undo it.
//
// # Usage
//
//	e, err := guardmod.New(".guardmod/ledger.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	paths, err := e.Discover("graalpython", guardmod.DiscoverOptions{})
//	summary, err := e.Run(ctx, paths, guardmod.RunOptions{Mode: guardmod.ModeAdd})
package guardmod
