// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Catalog codes. They match the diagnostic codes reported by the workspace
// build and the package scan.
const (
	ParseErrorCode           Code = "parse_error"
	UnresolvedReferenceCode  Code = "unresolved_reference"
	DuplicateSymbolCode      Code = "duplicate_symbol"
	DuplicateDataModelIDCode Code = "duplicate_datamodel_id"
	DependencyCycleCode      Code = "dependency_cycle"
	InvalidDescriptorCode    Code = "invalid_descriptor"
	FolderUnreadableCode     Code = "folder_unreadable"
	DirectoryUnreadableCode  Code = "directory_unreadable"
	ConfigLoadFailedCode     Code = "config_load_failed"
)

type (
	// Code identifies a catalog entry.
	Code string

	// MarkdownMsg is the Markdown body of an entry.
	MarkdownMsg string

	// Issue is one catalog entry.
	Issue struct {
		code  Code
		title string
		mdMsg MarkdownMsg
	}
)

func (i *Issue) Code() Code { return i.code }

func (i *Issue) Title() string { return i.title }

func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// Markdown returns the full entry, heading included.
func (i *Issue) Markdown() string {
	return "# " + i.title + "\n" + string(i.mdMsg) + "\n\n_Code: `" + string(i.code) + "`_\n"
}

// Render returns the entry rendered for the terminal with the given glamour
// style ("dark", "light", "notty", ...).
func (i *Issue) Render(style string) (string, error) {
	return render(i.Markdown(), style)
}

var (
	render = glamour.Render

	parseErrorIssue = &Issue{
		code:  ParseErrorCode,
		title: "Document could not be parsed",
		mdMsg: `
The file is not a valid CrossModel document. Every document is YAML with
exactly one root: ` + "`datamodel`, `entity` or `relationship`" + `.

## Things you can try
- Check indentation and quoting around the reported line
- Remove fields the root does not know about
- Give every entity, relationship and attribute an ` + "`id`",
	}

	unresolvedReferenceIssue = &Issue{
		code:  UnresolvedReferenceCode,
		title: "Reference cannot be resolved",
		mdMsg: `
A relationship names an entity or attribute that is not in scope. A document
sees its own data model plus every data model reachable through declared
dependencies. Documents outside any data model see only themselves.

## Things you can try
- Add the owning data model to ` + "`dependencies`" + ` in your ` + "`datamodel.cm`" + `
- Use the qualified form ` + "`Model.Entity`" + ` when two models declare the same id
- Run ` + "`crossmodel complete <file> <prefix>`" + ` to list what is in scope`,
	}

	duplicateSymbolIssue = &Issue{
		code:  DuplicateSymbolCode,
		title: "Entity declared twice",
		mdMsg: `
Two documents of the same data model declare an entity with the same id.
References to it become ambiguous.

## Things you can try
- Rename one of the entities
- Move one of them into a separate data model`,
	}

	duplicateDataModelIDIssue = &Issue{
		code:  DuplicateDataModelIDCode,
		title: "Data model id declared twice",
		mdMsg: `
Several ` + "`datamodel.cm`" + ` files derive the same ` + "`id@version`" + `. Lookups by id
use the most recently registered descriptor; both stay registered by location.

## Things you can try
- Give each data model a unique ` + "`id`" + `
- Bump the ` + "`version`" + ` of the copy you are evolving`,
	}

	dependencyCycleIssue = &Issue{
		code:  DependencyCycleCode,
		title: "Data models depend on each other",
		mdMsg: `
The listed data models form a dependency cycle. This is tolerated: every
member of the cycle sees every other member. It usually means two models
should be merged or a shared model extracted.`,
	}

	invalidDescriptorIssue = &Issue{
		code:  InvalidDescriptorCode,
		title: "Data model descriptor is invalid",
		mdMsg: `
A ` + "`datamodel.cm`" + ` file failed to parse, so its folder is not a data model.
Documents below it fall back to the enclosing data model, if any.

## Things you can try
- Make sure the file has a top-level ` + "`datamodel:`" + ` block with an ` + "`id`" + `
- Use ` + "`logical`, `relational` or `physical`" + ` as the type, or omit it`,
	}

	folderUnreadableIssue = &Issue{
		code:  FolderUnreadableCode,
		title: "Workspace folder cannot be read",
		mdMsg: `
A workspace folder passed on the command line could not be listed, so none of
its data models were registered.

## Things you can try
- Check the path and your permissions
- Pass the folder as a ` + "`file://`" + ` URL or a plain path`,
	}

	directoryUnreadableIssue = &Issue{
		code:  DirectoryUnreadableCode,
		title: "Directory skipped during scan",
		mdMsg: `
A directory inside the workspace could not be listed and was skipped. Data
models below it are missing.

## Things you can try
- Fix the directory permissions
- Exclude it with ` + "`scan.ignore`" + ` in ` + "`crossmodel.cue`",
	}

	configLoadFailedIssue = &Issue{
		code:  ConfigLoadFailedCode,
		title: "Configuration could not be loaded",
		mdMsg: `
The configuration file does not match the expected schema.

## Things you can try
- Print the defaults with ` + "`crossmodel config show`" + `
- Check field names and types against the defaults
- Override single values with ` + "`CROSSMODEL_*`" + ` environment variables`,
	}

	issues = map[Code]*Issue{
		parseErrorIssue.code:           parseErrorIssue,
		unresolvedReferenceIssue.code:  unresolvedReferenceIssue,
		duplicateSymbolIssue.code:      duplicateSymbolIssue,
		duplicateDataModelIDIssue.code: duplicateDataModelIDIssue,
		dependencyCycleIssue.code:      dependencyCycleIssue,
		invalidDescriptorIssue.code:    invalidDescriptorIssue,
		folderUnreadableIssue.code:     folderUnreadableIssue,
		directoryUnreadableIssue.code:  directoryUnreadableIssue,
		configLoadFailedIssue.code:     configLoadFailedIssue,
	}
)

// Get returns the entry for code, or nil.
func Get(code Code) *Issue {
	return issues[code]
}

// Values returns every entry ordered by code.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return strings.Compare(string(a.code), string(b.code)) })
	return out
}
