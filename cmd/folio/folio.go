// Package foliocmder provides the root folio command.
package foliocmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/folio/cmd/folio/config"
	servecmder "github.com/papercomputeco/folio/cmd/folio/serve"
	versioncmder "github.com/papercomputeco/folio/cmd/folio/version"
)

const folioLongDesc string = `Folio is a document retrieval service.

Upload documents into sessions, then query them with semantic search
or ask questions grounded in the retrieved passages.

Run the server using:
  folio serve          Run the API server

Manage configuration using:
  folio config         Get, set, and list configuration values`

const folioShortDesc string = "Folio - Document Retrieval"

func NewFolioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folio",
		Short: folioShortDesc,
		Long:  folioLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .folio/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
