// SPDX-License-Identifier: MPL-2.0

// Command crossmodel inspects CrossModel data model workspaces.
package main

import cmd "github.com/crossmodel/crossmodel/cmd/crossmodel"

func main() {
	cmd.Execute()
}
