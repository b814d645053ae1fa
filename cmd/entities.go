package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nanda8994/MCPD365Server/internal/entra"
	"github.com/Nanda8994/MCPD365Server/internal/odata"
)

func newEntitiesCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "entities [name]",
		Short: "List or resolve Dynamics 365 data entities",
		Long: `List the data entities exposed by the configured Dynamics 365
environment, or resolve a possibly misspelled entity name to its exact
locator.

Credentials are read from the D365_TENANT_ID, D365_CLIENT_ID,
D365_CLIENT_SECRET and D365_RESOURCE_URL environment variables.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := entra.ConfigFromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			tokens := entra.NewProvider(cfg)
			client := odata.NewClient(ctx, cfg.Resource, tokens.TokenSource(ctx))

			if len(args) == 0 {
				entities, err := client.ListEntities(ctx)
				if err != nil {
					return fmt.Errorf("failed to list entities: %w", err)
				}
				for _, e := range entities {
					fmt.Printf("%s\t%s\n", e.Name, e.URL)
				}
				return nil
			}

			resolver := odata.NewResolver(client)
			locator, ok := resolver.FindBestMatch(ctx, args[0])
			if !ok {
				return fmt.Errorf("no entity matching %q was found", args[0])
			}
			fmt.Println(locator)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall timeout for catalog retrieval")

	return cmd
}
