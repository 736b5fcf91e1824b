// Package github implements the idempotent release-directory protocol
// against a GitHub-style releases API: existence-or-creation for tags,
// releases and assets, binary asset transfer with manual redirect
// following, and upload-conflict resolution. Every remote call runs
// through the shared resilience executor; remote identifiers are never
// cached across operations so concurrent external changes are tolerated
// at the cost of extra lookups.
package github
