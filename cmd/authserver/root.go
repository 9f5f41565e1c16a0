package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "authserver",
		Short: "OAuth 2.1 authorization server for a single MCP resource",
		Long: `authserver issues bearer tokens for one protected MCP resource using the
authorization code grant with PKCE, a consent page and open dynamic client
registration restricted to an allow-list of redirect URIs.`,
		Version: version,
		// Errors are reported once by cobra; the usage text only helps for flag mistakes
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "authserver version %s\n" .Version}}`)

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newConfigCmd())
	return root
}
