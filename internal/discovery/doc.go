// SPDX-License-Identifier: MPL-2.0

// Package discovery walks workspace folders and collects the files a caller
// is interested in, such as data model descriptors or model documents.
//
// File organization:
//   - discovery.go: Scanner and the concurrent folder walk
//   - diagnostic.go: non-fatal problems reported alongside scan results
package discovery
